package postgres

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/ProCodeJH/antigravity-remote-control/pkg/model"
	"github.com/ProCodeJH/antigravity-remote-control/pkg/storage"
)

func newSessionStore(db *sqlx.DB) *sessionStore {
	return &sessionStore{
		db: db,
	}
}

type sessionStore struct {
	db *sqlx.DB
}

type sqlDataSession struct {
	ID              string    `db:"id"`
	Status          string    `db:"status"`
	CreatorIP       string    `db:"creator_ip"`
	AgentConnected  bool      `db:"agent_connected"`
	MobileConnected bool      `db:"mobile_connected"`
	TotalFrames     int64     `db:"total_frames"`
	TotalBytes      int64     `db:"total_bytes"`
	ExpiresAt       time.Time `db:"expires_at"`
	CreatedAt       time.Time `db:"created_at"`
	UpdatedAt       time.Time `db:"updated_at"`
}

var sqlParamsSession = []string{
	"id",
	"status",
	"creator_ip",
	"agent_connected",
	"mobile_connected",
	"total_frames",
	"total_bytes",
	"expires_at",
	"created_at",
	"updated_at",
}

func (d *sqlDataSession) Scan(m *model.Session) error {
	var createdAt, updatedAt = m.CreatedAt, m.UpdatedAt

	if m.CreatedAt.IsZero() {
		createdAt = time.Now().Round(time.Second).UTC()
	}

	if m.UpdatedAt.IsZero() {
		updatedAt = time.Now().Round(time.Second).UTC()
	}

	d.ID = m.ID
	d.Status = string(m.Status)
	d.CreatorIP = m.CreatorIP
	d.AgentConnected = m.AgentConnected
	d.MobileConnected = m.MobileConnected
	d.TotalFrames = m.TotalFrames
	d.TotalBytes = m.TotalBytes
	d.ExpiresAt = m.ExpiresAt
	d.CreatedAt = createdAt
	d.UpdatedAt = updatedAt

	return nil
}

func (d *sqlDataSession) Model() (*model.Session, error) {
	m := &model.Session{
		ID:              d.ID,
		Status:          model.SessionStatus(d.Status),
		CreatorIP:       d.CreatorIP,
		AgentConnected:  d.AgentConnected,
		MobileConnected: d.MobileConnected,
		TotalFrames:     d.TotalFrames,
		TotalBytes:      d.TotalBytes,
		ExpiresAt:       d.ExpiresAt,
		CreatedAt:       d.CreatedAt,
		UpdatedAt:       d.UpdatedAt,
	}

	return m, nil
}

func (s *sessionStore) FetchAll() (map[string]model.Session, error) {
	rows := make([]sqlDataSession, 0)
	models := make(map[string]model.Session)

	query := "SELECT * FROM sessions"
	if err := s.db.Select(&rows, query); err != nil {
		return nil, errors.Wrap(err, "failed to fetch all sessions")
	}

	for _, d := range rows {
		m, err := d.Model()
		if err != nil {
			return nil, errors.Wrap(err, "failed to convert SQL data to session model")
		}

		models[d.ID] = *m
	}

	return models, nil
}

func (s *sessionStore) FindByID(id string) (*model.Session, error) {
	d := sqlDataSession{}
	query := "SELECT * FROM sessions WHERE id=$1"
	if err := s.db.Get(&d, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, storage.ErrNotFound
		}
		return nil, errors.Wrap(err, "failed to find session")
	}

	return d.Model()
}

func (s *sessionStore) CountByCreatorIP(ip string) (int, error) {
	var n int
	query := "SELECT COUNT(*) FROM sessions WHERE creator_ip=$1 AND status NOT IN ('expired', 'terminated')"
	if err := s.db.Get(&n, query, ip); err != nil {
		return 0, errors.Wrap(err, "failed to count sessions by creator")
	}

	return n, nil
}

func (s *sessionStore) Create(m *model.Session) error {
	d := sqlDataSession{}
	if err := d.Scan(m); err != nil {
		return errors.Wrap(err, "failed to convert session model to SQL data")
	}

	query := fmt.Sprintf(
		"INSERT INTO sessions (%s) VALUES (%s)",
		strings.Join(sqlParamsSession, ", "),
		":"+strings.Join(sqlParamsSession, ", :"),
	)
	if _, err := s.db.NamedExec(query, d); err != nil {
		return errors.Wrap(err, "failed to create session")
	}

	m.CreatedAt = d.CreatedAt
	m.UpdatedAt = d.UpdatedAt

	return nil
}

func (s *sessionStore) Update(m *model.Session) error {
	if _, err := s.FindByID(m.ID); err != nil {
		return err
	}

	// Set the UpdateAt date to now
	m.UpdatedAt = time.Now().Round(time.Second).UTC()

	d := sqlDataSession{}
	if err := d.Scan(m); err != nil {
		return errors.Wrap(err, "failed to convert session model to SQL data")
	}

	var queryParams []string
	for _, param := range sqlParamsSession {
		queryParams = append(queryParams, fmt.Sprintf("%s=:%s", param, param))
	}
	query := fmt.Sprintf("UPDATE sessions SET %s WHERE id=:id", strings.Join(queryParams, ", "))
	if _, err := s.db.NamedExec(query, d); err != nil {
		return errors.Wrap(err, "failed to update session")
	}

	return nil
}

func (s *sessionStore) Delete(id string) error {
	query := "DELETE FROM sessions WHERE id=$1"
	_, err := s.db.Exec(query, id)
	if err != nil {
		return errors.Wrap(err, "failed to delete session")
	}

	return nil
}

func (s *sessionStore) Touch(id string, expiresAt time.Time) error {
	query := `UPDATE sessions SET status='active', expires_at=GREATEST(expires_at, $2), updated_at=NOW()
		WHERE id=$1 AND status NOT IN ('expired', 'terminated')`
	res, err := s.db.Exec(query, id, expiresAt)
	if err != nil {
		return errors.Wrap(err, "failed to touch session")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return storage.ErrNotFound
	}

	return nil
}

func (s *sessionStore) MarkRole(id string, role string, connected bool) error {
	var column string
	switch role {
	case "agent":
		column = "agent_connected"
	case "mobile":
		column = "mobile_connected"
	default:
		return nil
	}

	query := fmt.Sprintf("UPDATE sessions SET %s=$2, updated_at=NOW() WHERE id=$1", column)
	if _, err := s.db.Exec(query, id, connected); err != nil {
		return errors.Wrap(err, "failed to mark session role")
	}

	return nil
}

func (s *sessionStore) RecordTraffic(id string, frames, bytes int64) error {
	query := `UPDATE sessions SET total_frames=total_frames+$2, total_bytes=total_bytes+$3, updated_at=NOW()
		WHERE id=$1`
	if _, err := s.db.Exec(query, id, frames, bytes); err != nil {
		return errors.Wrap(err, "failed to record session traffic")
	}

	return nil
}

func (s *sessionStore) ExpireDue(now time.Time) ([]model.Session, error) {
	rows := make([]sqlDataSession, 0)
	query := `UPDATE sessions SET status='expired', updated_at=NOW()
		WHERE expires_at <= $1 AND status NOT IN ('expired', 'terminated')
		RETURNING *`
	if err := s.db.Select(&rows, query, now); err != nil {
		return nil, errors.Wrap(err, "failed to expire due sessions")
	}

	due := make([]model.Session, 0, len(rows))
	for _, d := range rows {
		m, err := d.Model()
		if err != nil {
			return nil, errors.Wrap(err, "failed to convert SQL data to session model")
		}
		due = append(due, *m)
	}

	return due, nil
}
