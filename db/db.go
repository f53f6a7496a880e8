// Package db is the subscription store: streamers, subscribers and the
// subscriptions linking them. It is the only state shared between the pollers and
// the command layer.
package db

import (
	"context"
	"database/sql"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/extra/bundebug"
	"time"

	_ "modernc.org/sqlite"
)

var (
	ErrNotFound          = errors.New("entity not found")
	ErrAlreadySubscribed = errors.New("already subscribed")
	ErrUnknownDriver     = errors.New("unknown database driver")
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type DB struct {
	db      *bun.DB
	timeout time.Duration
}

const defaultTimeout = time.Minute

// New opens the store. driver is DriverPostgres or DriverSQLite; dsn is passed to
// the driver untouched.
func New(driver, dsn string) (*DB, error) {
	switch driver {
	case DriverPostgres:
		sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
		return &DB{db: bun.NewDB(sqldb, pgdialect.New()), timeout: defaultTimeout}, nil
	case DriverSQLite:
		sqldb, err := sql.Open("sqlite", dsn)
		if err != nil {
			return nil, errors.Wrap(err, "unable to open sqlite database")
		}
		// SQLite prefers a single writer; this also keeps ":memory:" databases alive.
		sqldb.SetMaxOpenConns(1)
		sqldb.SetMaxIdleConns(1)
		return &DB{db: bun.NewDB(sqldb, sqlitedialect.New()), timeout: defaultTimeout}, nil
	default:
		return nil, errors.Wrapf(ErrUnknownDriver, "%q", driver)
	}
}

func (d *DB) SetTimeout(duration time.Duration) {
	d.timeout = duration
}

func (d *DB) EnableDebug() {
	d.db.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true)))
}

func (d *DB) Close() error {
	return d.db.Close()
}

func (d *DB) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	return d.db.PingContext(ctx)
}

// Migrate creates the tables and indexes if they are missing.
func (d *DB) Migrate(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	tables := []struct {
		model interface{}
		fks   []string
	}{
		{model: (*Streamer)(nil)},
		{model: (*Subscriber)(nil)},
		{
			model: (*Subscription)(nil),
			fks: []string{
				`("subscriber_id") REFERENCES "subscribers" ("subscriber_id") ON DELETE CASCADE`,
				`("streamer_id") REFERENCES "streamers" ("streamer_id") ON DELETE CASCADE`,
			},
		},
	}
	for _, table := range tables {
		query := d.db.NewCreateTable().Model(table.model).IfNotExists()
		for _, fk := range table.fks {
			query = query.ForeignKey(fk)
		}
		if _, err := query.Exec(ctx); err != nil {
			return errors.Wrapf(err, "unable to create table for %T", table.model)
		}
	}
	_, err := d.db.NewCreateIndex().
		Model((*Streamer)(nil)).
		Unique().
		IfNotExists().
		Index("streamers_service_username_idx").
		Column("service", "username").
		Exec(ctx)
	if err != nil {
		return errors.Wrap(err, "unable to create streamers unique index")
	}
	_, err = d.db.NewCreateIndex().
		Model((*Subscription)(nil)).
		IfNotExists().
		Index("subscriptions_streamer_id_idx").
		Column("streamer_id").
		Exec(ctx)
	if err != nil {
		return errors.Wrap(err, "unable to create subscriptions index")
	}
	return nil
}

// AddSubscription makes sure the subscriber and the streamer exist and links them,
// all in one transaction. A second add of the same pair returns ErrAlreadySubscribed
// and changes nothing; the composite primary key decides the race between
// concurrent identical adds.
func (d *DB) AddSubscription(
	ctx context.Context,
	subscriberId, target, service, username, providerId string,
) (Streamer, error) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	var streamer Streamer
	err := d.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		subscriber := Subscriber{Id: subscriberId, Target: target}
		_, err := tx.NewInsert().
			Model(&subscriber).
			On("CONFLICT (subscriber_id) DO NOTHING").
			Exec(ctx)
		if err != nil {
			return errors.Wrap(err, "error during adding subscriber")
		}
		candidate := Streamer{
			Id:         uuid.New(),
			Service:    service,
			Username:   username,
			ProviderId: providerId,
		}
		_, err = tx.NewInsert().
			Model(&candidate).
			On("CONFLICT (service, username) DO NOTHING").
			Exec(ctx)
		if err != nil {
			return errors.Wrap(err, "error during adding streamer")
		}
		err = tx.NewSelect().
			Model(&streamer).
			Where("service = ?", service).
			Where("username = ?", username).
			Scan(ctx)
		if err != nil {
			return errors.Wrap(err, "error during querying streamer")
		}
		result, err := tx.NewInsert().
			Model(&Subscription{SubscriberId: subscriberId, StreamerId: streamer.Id}).
			On("CONFLICT (subscriber_id, streamer_id) DO NOTHING").
			Exec(ctx)
		if err != nil {
			return errors.Wrap(err, "error during adding subscription")
		}
		inserted, err := result.RowsAffected()
		if err != nil {
			return err
		}
		if inserted == 0 {
			return ErrAlreadySubscribed
		}
		return nil
	})
	if err != nil {
		return Streamer{}, err
	}
	return streamer, nil
}

// DeleteSubscription removes the link if there is one. Removing a link that does
// not exist is not an error; the returned bool tells whether anything was removed.
func (d *DB) DeleteSubscription(ctx context.Context, subscriberId, service, username string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	streamerIds := d.db.NewSelect().
		Model((*Streamer)(nil)).
		Column("streamer_id").
		Where("service = ?", service).
		Where("username = ?", username)
	result, err := d.db.NewDelete().
		Model((*Subscription)(nil)).
		Where("subscriber_id = ?", subscriberId).
		Where("streamer_id IN (?)", streamerIds).
		Exec(ctx)
	if err != nil {
		return false, errors.Wrap(err, "error during deleting subscription")
	}
	deleted, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return deleted > 0, nil
}

// DeleteSubscriber removes the subscriber together with all of its subscriptions.
func (d *DB) DeleteSubscriber(ctx context.Context, subscriberId string) error {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	return d.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		_, err := tx.NewDelete().
			Model((*Subscription)(nil)).
			Where("subscriber_id = ?", subscriberId).
			Exec(ctx)
		if err != nil {
			return errors.Wrap(err, "error during deleting subscriptions")
		}
		_, err = tx.NewDelete().
			Model((*Subscriber)(nil)).
			Where("subscriber_id = ?", subscriberId).
			Exec(ctx)
		if err != nil {
			return errors.Wrap(err, "error during deleting subscriber")
		}
		return nil
	})
}

func (d *DB) GetStreamer(ctx context.Context, service, username string) (Streamer, error) {
	var s Streamer
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	err := d.db.NewSelect().
		Model(&s).
		Where("service = ?", service).
		Where("username = ?", username).
		Scan(ctx)
	if err != nil && errors.Is(err, sql.ErrNoRows) {
		return Streamer{}, ErrNotFound
	}
	if err != nil {
		return Streamer{}, errors.Wrap(err, "error during querying streamer")
	}
	return s, nil
}

func (d *DB) ListStreamers(ctx context.Context, service string) ([]Streamer, error) {
	var streamers []Streamer
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	err := d.db.NewSelect().
		Model(&streamers).
		Where("service = ?", service).
		Order("username").
		Scan(ctx)
	if err != nil {
		return nil, errors.Wrapf(err, "error during listing streamers of %v", service)
	}
	return streamers, nil
}

// ListActiveStreamers is ListStreamers restricted to streamers somebody is
// subscribed to.
func (d *DB) ListActiveStreamers(ctx context.Context, service string) ([]Streamer, error) {
	var streamers []Streamer
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	err := d.db.NewSelect().
		Model(&streamers).
		Where("service = ?", service).
		Where("EXISTS (SELECT 1 FROM subscriptions AS s WHERE s.streamer_id = streamer.streamer_id)").
		Order("username").
		Scan(ctx)
	if err != nil {
		return nil, errors.Wrapf(err, "error during listing active streamers of %v", service)
	}
	return streamers, nil
}

func (d *DB) ListSubscribers(ctx context.Context, streamerId uuid.UUID) ([]Subscriber, error) {
	var subscribers []Subscriber
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	err := d.db.NewSelect().
		Model(&subscribers).
		Join("JOIN subscriptions AS s ON s.subscriber_id = subscriber.subscriber_id").
		Where("s.streamer_id = ?", streamerId).
		Order("subscriber.subscriber_id").
		Scan(ctx)
	if err != nil {
		return nil, errors.Wrapf(err, "error during listing subscribers of %v", streamerId)
	}
	return subscribers, nil
}

func (d *DB) ListSubscriptions(ctx context.Context, subscriberId, service string) ([]Streamer, error) {
	var streamers []Streamer
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	query := d.db.NewSelect().
		Model(&streamers).
		Join("JOIN subscriptions AS s ON s.streamer_id = streamer.streamer_id").
		Where("s.subscriber_id = ?", subscriberId)
	if service != "" {
		query = query.Where("streamer.service = ?", service)
	}
	err := query.Order("streamer.service", "streamer.username").Scan(ctx)
	if err != nil {
		return nil, errors.Wrapf(err, "error during listing subscriptions of %v", subscriberId)
	}
	return streamers, nil
}

func (d *DB) SetOnlineStatus(ctx context.Context, streamerId uuid.UUID, online bool) error {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	_, err := d.db.NewUpdate().
		Model((*Streamer)(nil)).
		Set("is_online = ?", online).
		Where("streamer_id = ?", streamerId).
		Exec(ctx)
	if err != nil {
		return errors.Wrapf(err, "error during setting online status of %v", streamerId)
	}
	return nil
}
