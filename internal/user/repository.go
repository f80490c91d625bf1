package user

import (
	"context"
	"database/sql"
	"errors"
	"strings"
)

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) CreateUser(ctx context.Context, u *User) (*User, error) {
	var id int
	query := `INSERT INTO users (username, password, first_name, last_name)
              VALUES ($1, $2, $3, $4) RETURNING id`

	err := r.db.QueryRowContext(ctx, query,
		u.Username, u.Password, u.FirstName, u.LastName,
	).Scan(&id)
	if err != nil {
		return nil, err
	}

	u.ID = id
	return u, nil
}

func (r *Repository) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	u := &User{}
	var thumbnail sql.NullString
	query := `SELECT id, username, password, first_name, last_name, thumbnail
              FROM users WHERE username = $1`

	err := r.db.QueryRowContext(ctx, query, username).Scan(
		&u.ID, &u.Username, &u.Password, &u.FirstName, &u.LastName, &thumbnail,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	u.Thumbnail = thumbnail.String

	return u, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// escapeLike neutralizes LIKE metacharacters so user input matches literally.
// Postgres treats backslash as the default escape character.
func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

// SearchUsers finds users whose username, first or last name starts with query
// (case-insensitive), excluding the viewer. Each row carries the friendship
// state between the viewer and the candidate.
func (r *Repository) SearchUsers(ctx context.Context, viewerID int, query string) ([]SearchResult, error) {
	q := `
		SELECT u.id, u.username, u.first_name, u.last_name, u.thumbnail,
			EXISTS (
				SELECT 1 FROM connections
				WHERE sender_id = $1 AND receiver_id = u.id AND NOT accepted
			) AS pending_them,
			EXISTS (
				SELECT 1 FROM connections
				WHERE sender_id = u.id AND receiver_id = $1 AND NOT accepted
			) AS pending_me,
			EXISTS (
				SELECT 1 FROM connections
				WHERE ((sender_id = $1 AND receiver_id = u.id)
					OR (sender_id = u.id AND receiver_id = $1))
					AND accepted
			) AS connected
		FROM users u
		WHERE u.id <> $1
			AND (u.username ILIKE $2 OR u.first_name ILIKE $2 OR u.last_name ILIKE $2)
	`
	rows, err := r.db.QueryContext(ctx, q, viewerID, escapeLike(query)+"%")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []SearchResult
	for rows.Next() {
		var res SearchResult
		var thumbnail sql.NullString
		if err := rows.Scan(
			&res.ID, &res.Username, &res.FirstName, &res.LastName, &thumbnail,
			&res.PendingThem, &res.PendingMe, &res.Connected,
		); err != nil {
			return nil, err
		}
		res.Thumbnail = thumbnail.String
		results = append(results, res)
	}
	return results, rows.Err()
}

// SetThumbnail stores the media path of a freshly uploaded avatar and returns
// the updated user.
func (r *Repository) SetThumbnail(ctx context.Context, userID int, path string) (*User, error) {
	u := &User{Thumbnail: path}
	query := `UPDATE users SET thumbnail = $1 WHERE id = $2
              RETURNING id, username, first_name, last_name`

	err := r.db.QueryRowContext(ctx, query, path, userID).Scan(
		&u.ID, &u.Username, &u.FirstName, &u.LastName,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return u, nil
}
