package database

import (
	"context"
	"database/sql"
	"time"
)

const controlRepoTimeout = 2 * time.Second

// ControlMessageRepository persists each guild's live control-message handle
// so the progress display survives restarts. All methods tolerate a nil
// handle: without a database the bot simply keeps handles in memory.
type ControlMessageRepository struct {
	db *sql.DB
}

func NewControlMessageRepository(db *sql.DB) *ControlMessageRepository {
	return &ControlMessageRepository{db: db}
}

func (r *ControlMessageRepository) Upsert(guildID, channelID, messageID string) error {
	if r == nil || r.db == nil {
		return nil
	}
	if guildID == "" || channelID == "" || messageID == "" {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), controlRepoTimeout)
	defer cancel()

	const query = `
		INSERT INTO control_messages (guild_id, channel_id, message_id, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (guild_id)
		DO UPDATE SET
			channel_id = EXCLUDED.channel_id,
			message_id = EXCLUDED.message_id,
			updated_at = NOW();
	`

	_, err := r.db.ExecContext(ctx, query, guildID, channelID, messageID)
	return err
}

func (r *ControlMessageRepository) Get(guildID string) (channelID, messageID string, ok bool, err error) {
	if r == nil || r.db == nil {
		return "", "", false, nil
	}
	if guildID == "" {
		return "", "", false, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), controlRepoTimeout)
	defer cancel()

	const query = `
		SELECT channel_id, message_id
		FROM control_messages
		WHERE guild_id = $1
	`

	err = r.db.QueryRowContext(ctx, query, guildID).Scan(&channelID, &messageID)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", "", false, nil
		}
		return "", "", false, err
	}

	return channelID, messageID, true, nil
}

func (r *ControlMessageRepository) Delete(guildID string) error {
	if r == nil || r.db == nil {
		return nil
	}
	if guildID == "" {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), controlRepoTimeout)
	defer cancel()

	const query = `
		DELETE FROM control_messages
		WHERE guild_id = $1
	`

	_, err := r.db.ExecContext(ctx, query, guildID)
	return err
}
