// Copyright 2023 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package devdb holds types to describe the catalog of tested devices,
// their trigger button profiles and the results of latency runs.
//
// The catalog is stored in a MySQL database with the following tables:
//
//	devices(vendor, product, manufacturer, name, version, serial)
//	buttons(vendor, product, name, position, value, length, datetime)
//	runs(vendor, product, button, triggers, samples,
//	     min, max, mean, stddev, dir, datetime)
package devdb // import "github.com/go-lpc/usblag/devdb"

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"

	"github.com/go-lpc/usblag/latency"
	"github.com/go-lpc/usblag/report"
)

const (
	host = "localhost"
)

var (
	usr = "username"
	pwd = "s3cr3t"

	drvName = "mysql"

	// ErrNotFound is returned when the catalog holds no matching record.
	ErrNotFound = errors.New("devdb: no such record")
)

// DB exposes convenience methods to retrieve and store tested devices
// and latency results.
type DB struct {
	db   *sql.DB
	name string
}

// Open opens a connection to the catalog database dbname.
func Open(dbname string) (*DB, error) {
	db, err := sql.Open(drvName, dsn(dbname))
	if err != nil {
		return nil, fmt.Errorf("devdb: could not open %q db: %w", dbname, err)
	}

	err = ping(db, dbname)
	if err != nil {
		db.Close()
		return nil, err
	}

	return &DB{db: db, name: dbname}, nil
}

func dsn(db string) string {
	return fmt.Sprintf("%s:%s@tcp(%s)/%s?parseTime=true", usr, pwd, host, db)
}

func ping(db *sql.DB, dbname string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("devdb: could not ping %q db: %w", dbname, err)
	}

	return nil
}

func (db *DB) Close() error {
	return db.db.Close()
}

// Device returns the catalog entry of the device vid:pid.
func (db *DB) Device(ctx context.Context, vid, pid string) (latency.Device, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	dev := latency.Device{VendorID: vid, ProductID: pid}
	rows, err := db.db.QueryContext(
		ctx,
		`
SELECT manufacturer, name, version, serial FROM devices
WHERE (vendor=? AND product=?)
LIMIT 1
`,
		strings.ToLower(vid), strings.ToLower(pid),
	)
	if err != nil {
		return dev, fmt.Errorf("devdb: could not query device %s: %w", dev.ID(), err)
	}
	defer rows.Close()

	found := false
	for rows.Next() {
		err = rows.Scan(&dev.Manufacturer, &dev.Product, &dev.Version, &dev.Serial)
		if err != nil {
			return dev, fmt.Errorf("devdb: could not get device %s: %w", dev.ID(), err)
		}
		found = true
	}

	if err := rows.Err(); err != nil {
		return dev, fmt.Errorf("devdb: could not scan db for device %s: %w", dev.ID(), err)
	}

	if err := ctx.Err(); err != nil {
		return dev, fmt.Errorf("devdb: context error while retrieving device %s: %w", dev.ID(), err)
	}

	if !found {
		return dev, fmt.Errorf("%w: device %s", ErrNotFound, dev.ID())
	}

	return dev, nil
}

// SaveDevice records the identification of a tested device.
func (db *DB) SaveDevice(ctx context.Context, dev latency.Device) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err := db.db.ExecContext(
		ctx,
		`
REPLACE INTO devices (vendor, product, manufacturer, name, version, serial)
VALUES (?, ?, ?, ?, ?, ?)
`,
		strings.ToLower(dev.VendorID), strings.ToLower(dev.ProductID),
		dev.Manufacturer, dev.Product, dev.Version, dev.Serial,
	)
	if err != nil {
		return fmt.Errorf("devdb: could not save device %s: %w", dev.ID(), err)
	}
	return nil
}

// Button returns the last recorded profile of the named trigger button of
// the device vid:pid.
// An empty name selects the last recorded button of the device.
func (db *DB) Button(ctx context.Context, vid, pid, name string) (latency.Button, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var (
		btn  latency.Button
		rows *sql.Rows
		err  error
		id   = vid + ":" + pid
	)

	const query = `
SELECT name, position, value, length FROM buttons
WHERE (vendor=? AND product=?%s)
ORDER BY datetime DESC LIMIT 1
`
	switch name {
	case "":
		rows, err = db.db.QueryContext(
			ctx, fmt.Sprintf(query, ""),
			strings.ToLower(vid), strings.ToLower(pid),
		)
	default:
		rows, err = db.db.QueryContext(
			ctx, fmt.Sprintf(query, " AND name=?"),
			strings.ToLower(vid), strings.ToLower(pid), name,
		)
	}
	if err != nil {
		return btn, fmt.Errorf("devdb: could not query button of %s: %w", id, err)
	}
	defer rows.Close()

	found := false
	for rows.Next() {
		var v uint8
		err = rows.Scan(&btn.Name, &btn.Position, &v, &btn.Length)
		if err != nil {
			return btn, fmt.Errorf("devdb: could not get button of %s: %w", id, err)
		}
		btn.Value = v
		found = true
	}

	if err := rows.Err(); err != nil {
		return btn, fmt.Errorf("devdb: could not scan db for button of %s: %w", id, err)
	}

	if err := ctx.Err(); err != nil {
		return btn, fmt.Errorf("devdb: context error while retrieving button of %s: %w", id, err)
	}

	if !found {
		return btn, fmt.Errorf("%w: button %q of %s", ErrNotFound, name, id)
	}

	return btn, nil
}

// SaveButton records the trigger button profile of a device.
func (db *DB) SaveButton(ctx context.Context, dev latency.Device, btn latency.Button) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err := db.db.ExecContext(
		ctx,
		`
INSERT INTO buttons (vendor, product, name, position, value, length, datetime)
VALUES (?, ?, ?, ?, ?, ?, ?)
`,
		strings.ToLower(dev.VendorID), strings.ToLower(dev.ProductID),
		btn.Name, btn.Position, int(btn.Value), btn.Length,
		now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("devdb: could not save button %q of %s: %w", btn.Name, dev.ID(), err)
	}
	return nil
}

// Run is a latency run recorded in the catalog.
type Run struct {
	Button   string
	Triggers int
	Stats    latency.Stats
	Dir      string // output directory of the run artifacts
	Time     time.Time
}

// SaveRun records the results of a latency run.
func (db *DB) SaveRun(ctx context.Context, res report.Results, dir string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var (
		dev = res.Device
		st  = res.Stats
	)
	_, err := db.db.ExecContext(
		ctx,
		`
INSERT INTO runs (vendor, product, button, triggers, samples, min, max, mean, stddev, dir, datetime)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`,
		strings.ToLower(dev.VendorID), strings.ToLower(dev.ProductID),
		res.Button.Name, res.Triggers, st.N,
		st.Min, st.Max, st.Mean, st.StdDev,
		dir, now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("devdb: could not save run of %s: %w", dev.ID(), err)
	}
	return nil
}

// Runs returns the latency runs of the device vid:pid, most recent first.
func (db *DB) Runs(ctx context.Context, vid, pid string) ([]Run, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var (
		runs []Run
		id   = vid + ":" + pid
	)
	rows, err := db.db.QueryContext(
		ctx,
		`
SELECT button, triggers, samples, min, max, mean, stddev, dir, datetime FROM runs
WHERE (vendor=? AND product=?)
ORDER BY datetime DESC
`,
		strings.ToLower(vid), strings.ToLower(pid),
	)
	if err != nil {
		return runs, fmt.Errorf("devdb: could not query runs of %s: %w", id, err)
	}
	defer rows.Close()

	for rows.Next() {
		var run Run
		err = rows.Scan(
			&run.Button, &run.Triggers, &run.Stats.N,
			&run.Stats.Min, &run.Stats.Max, &run.Stats.Mean, &run.Stats.StdDev,
			&run.Dir, &run.Time,
		)
		if err != nil {
			return runs, fmt.Errorf("devdb: could not scan run %d of %s: %w", len(runs), id, err)
		}
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return runs, fmt.Errorf("devdb: could not scan db for runs of %s: %w", id, err)
	}

	if err := ctx.Err(); err != nil {
		return runs, fmt.Errorf("devdb: context error while retrieving runs of %s: %w", id, err)
	}

	return runs, nil
}

var now = time.Now
