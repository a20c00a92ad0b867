package postgres

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/ProCodeJH/antigravity-remote-control/pkg/model"
	"github.com/ProCodeJH/antigravity-remote-control/pkg/storage"
)

func newDeviceStore(db *sqlx.DB) *deviceStore {
	return &deviceStore{
		db: db,
	}
}

type deviceStore struct {
	db *sqlx.DB
}

type sqlDataDevice struct {
	ID              string         `db:"id"`
	Name            string         `db:"name"`
	Hostname        string         `db:"hostname"`
	IP              string         `db:"ip"`
	OS              string         `db:"os"`
	Capabilities    pq.StringArray `db:"capabilities"`
	SessionID       string         `db:"session_id"`
	Status          string         `db:"status"`
	Thumbnail       string         `db:"thumbnail"`
	LastHeartbeatAt time.Time      `db:"last_heartbeat_at"`
	CreatedAt       time.Time      `db:"created_at"`
	UpdatedAt       time.Time      `db:"updated_at"`
}

var sqlParamsDevice = []string{
	"id",
	"name",
	"hostname",
	"ip",
	"os",
	"capabilities",
	"session_id",
	"status",
	"thumbnail",
	"last_heartbeat_at",
	"created_at",
	"updated_at",
}

func (d *sqlDataDevice) Scan(m *model.Device) error {
	var createdAt, updatedAt = m.CreatedAt, m.UpdatedAt

	if m.CreatedAt.IsZero() {
		createdAt = time.Now().Round(time.Second).UTC()
	}

	if m.UpdatedAt.IsZero() {
		updatedAt = time.Now().Round(time.Second).UTC()
	}

	d.ID = m.ID
	d.Name = m.Name
	d.Hostname = m.Hostname
	d.IP = m.IP
	d.OS = m.OS
	d.Capabilities = pq.StringArray(m.Capabilities)
	d.SessionID = m.SessionID
	d.Status = m.Status
	d.Thumbnail = m.Thumbnail
	d.LastHeartbeatAt = m.LastHeartbeatAt
	d.CreatedAt = createdAt
	d.UpdatedAt = updatedAt

	return nil
}

func (d *sqlDataDevice) Model() (*model.Device, error) {
	m := &model.Device{
		ID:              d.ID,
		Name:            d.Name,
		Hostname:        d.Hostname,
		IP:              d.IP,
		OS:              d.OS,
		Capabilities:    []string(d.Capabilities),
		SessionID:       d.SessionID,
		Status:          d.Status,
		Thumbnail:       d.Thumbnail,
		LastHeartbeatAt: d.LastHeartbeatAt,
		CreatedAt:       d.CreatedAt,
		UpdatedAt:       d.UpdatedAt,
	}

	return m, nil
}

func (s *deviceStore) FetchAll() (map[string]model.Device, error) {
	rows := make([]sqlDataDevice, 0)
	models := make(map[string]model.Device)

	query := "SELECT * FROM devices"
	if err := s.db.Select(&rows, query); err != nil {
		return nil, errors.Wrap(err, "failed to fetch all devices")
	}

	for _, d := range rows {
		m, err := d.Model()
		if err != nil {
			return nil, errors.Wrap(err, "failed to convert SQL data to device model")
		}

		models[d.ID] = *m
	}

	return models, nil
}

func (s *deviceStore) FindByID(id string) (*model.Device, error) {
	d := sqlDataDevice{}
	query := "SELECT * FROM devices WHERE id=$1"
	if err := s.db.Get(&d, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, storage.ErrNotFound
		}
		return nil, errors.Wrap(err, "failed to find device")
	}

	return d.Model()
}

func (s *deviceStore) Upsert(m *model.Device) error {
	d := sqlDataDevice{}
	if err := d.Scan(m); err != nil {
		return errors.Wrap(err, "failed to convert device model to SQL data")
	}

	var updateParams []string
	for _, param := range sqlParamsDevice {
		if param == "id" || param == "created_at" {
			continue
		}
		updateParams = append(updateParams, fmt.Sprintf("%s=EXCLUDED.%s", param, param))
	}

	query := fmt.Sprintf(
		"INSERT INTO devices (%s) VALUES (%s) ON CONFLICT (id) DO UPDATE SET %s",
		strings.Join(sqlParamsDevice, ", "),
		":"+strings.Join(sqlParamsDevice, ", :"),
		strings.Join(updateParams, ", "),
	)
	if _, err := s.db.NamedExec(query, d); err != nil {
		return errors.Wrap(err, "failed to upsert device")
	}

	return nil
}

func (s *deviceStore) Delete(id string) error {
	query := "DELETE FROM devices WHERE id=$1"
	_, err := s.db.Exec(query, id)
	if err != nil {
		return errors.Wrap(err, "failed to delete device")
	}

	return nil
}
