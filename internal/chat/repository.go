package chat

import (
	"context"
	"database/sql"
	"errors"
)

// messagePageSize is the page size for message history; page is a zero-based
// offset, newest first.
const messagePageSize = 20

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const connectionColumns = `
	c.id, c.accepted, c.created, c.updated,
	s.id, s.username, s.first_name, s.last_name, s.thumbnail,
	r.id, r.username, r.first_name, r.last_name, r.thumbnail`

const connectionJoins = `
	FROM connections c
	JOIN users s ON s.id = c.sender_id
	JOIN users r ON r.id = c.receiver_id`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConnection(row rowScanner) (*Connection, error) {
	c := &Connection{}
	var senderThumb, receiverThumb sql.NullString
	err := row.Scan(
		&c.ID, &c.Accepted, &c.Created, &c.Updated,
		&c.Sender.ID, &c.Sender.Username, &c.Sender.FirstName, &c.Sender.LastName, &senderThumb,
		&c.Receiver.ID, &c.Receiver.Username, &c.Receiver.FirstName, &c.Receiver.LastName, &receiverThumb,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	c.Sender.Thumbnail = senderThumb.String
	c.Receiver.Thumbnail = receiverThumb.String
	return c, nil
}

func (r *Repository) GetConnection(ctx context.Context, id int) (*Connection, error) {
	query := `SELECT` + connectionColumns + connectionJoins + ` WHERE c.id = $1`
	return scanConnection(r.db.QueryRowContext(ctx, query, id))
}

// EnsureConnection is the get-or-create for a friend request, keyed on the
// ordered (sender, receiver) pair. The insert races safely against concurrent
// requests thanks to the unique constraint.
func (r *Repository) EnsureConnection(ctx context.Context, senderID, receiverID int) (*Connection, error) {
	insert := `INSERT INTO connections (sender_id, receiver_id) VALUES ($1, $2)
               ON CONFLICT (sender_id, receiver_id) DO NOTHING`
	if _, err := r.db.ExecContext(ctx, insert, senderID, receiverID); err != nil {
		return nil, err
	}

	query := `SELECT` + connectionColumns + connectionJoins +
		` WHERE c.sender_id = $1 AND c.receiver_id = $2`
	return scanConnection(r.db.QueryRowContext(ctx, query, senderID, receiverID))
}

// AcceptConnection marks the pending request from senderUsername to the
// receiver as accepted and returns the updated connection.
func (r *Repository) AcceptConnection(ctx context.Context, senderUsername string, receiverID int) (*Connection, error) {
	var id int
	update := `UPDATE connections c SET accepted = TRUE, updated = CURRENT_TIMESTAMP
               FROM users s
               WHERE c.sender_id = s.id AND s.username = $1 AND c.receiver_id = $2
               RETURNING c.id`
	err := r.db.QueryRowContext(ctx, update, senderUsername, receiverID).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return r.GetConnection(ctx, id)
}

func (r *Repository) CreateMessage(ctx context.Context, connectionID, userID int, text string) (*Message, error) {
	m := &Message{ConnectionID: connectionID, UserID: userID, Text: text}
	query := `INSERT INTO messages (connection_id, user_id, text)
              VALUES ($1, $2, $3) RETURNING id, created`
	if err := r.db.QueryRowContext(ctx, query, connectionID, userID, text).Scan(&m.ID, &m.Created); err != nil {
		return nil, err
	}
	return m, nil
}

func (r *Repository) ListMessages(ctx context.Context, connectionID, page int) ([]Message, error) {
	query := `SELECT id, connection_id, user_id, text, created
              FROM messages
              WHERE connection_id = $1
              ORDER BY created DESC, id DESC
              LIMIT $2 OFFSET $3`
	rows, err := r.db.QueryContext(ctx, query, connectionID, messagePageSize, page*messagePageSize)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.ConnectionID, &m.UserID, &m.Text, &m.Created); err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

// ListFriends returns the viewer's accepted connections, each annotated with
// its latest message when one exists. Ordering is left to the caller.
func (r *Repository) ListFriends(ctx context.Context, userID int) ([]Friend, error) {
	query := `SELECT` + connectionColumns + `, latest.text, latest.created` + connectionJoins + `
		LEFT JOIN LATERAL (
			SELECT m.text, m.created FROM messages m
			WHERE m.connection_id = c.id
			ORDER BY m.created DESC LIMIT 1
		) latest ON TRUE
		WHERE c.accepted AND (c.sender_id = $1 OR c.receiver_id = $1)`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var friends []Friend
	for rows.Next() {
		var f Friend
		var senderThumb, receiverThumb, latestText sql.NullString
		var latestCreated sql.NullTime
		if err := rows.Scan(
			&f.ID, &f.Accepted, &f.Created, &f.Updated,
			&f.Sender.ID, &f.Sender.Username, &f.Sender.FirstName, &f.Sender.LastName, &senderThumb,
			&f.Receiver.ID, &f.Receiver.Username, &f.Receiver.FirstName, &f.Receiver.LastName, &receiverThumb,
			&latestText, &latestCreated,
		); err != nil {
			return nil, err
		}
		f.Sender.Thumbnail = senderThumb.String
		f.Receiver.Thumbnail = receiverThumb.String
		if latestText.Valid {
			f.LatestText = &latestText.String
		}
		if latestCreated.Valid {
			f.LatestCreated = &latestCreated.Time
		}
		friends = append(friends, f)
	}
	return friends, rows.Err()
}

// ListPendingRequests returns the incoming, not yet accepted requests for a
// user, newest first.
func (r *Repository) ListPendingRequests(ctx context.Context, receiverID int) ([]*Connection, error) {
	query := `SELECT` + connectionColumns + connectionJoins +
		` WHERE c.receiver_id = $1 AND NOT c.accepted ORDER BY c.created DESC`
	rows, err := r.db.QueryContext(ctx, query, receiverID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var connections []*Connection
	for rows.Next() {
		c, err := scanConnection(rows)
		if err != nil {
			return nil, err
		}
		connections = append(connections, c)
	}
	return connections, rows.Err()
}
