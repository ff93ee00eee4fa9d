package stationdb

import (
	"os"
	"path/filepath"
	"time"

	"github.com/go-errors/errors"
	"go.etcd.io/bbolt"
)

const (
	dbName           = "station.db"
	dbFilePermission = 0600
)

var (
	settingsBucket = []byte("settings")
	attemptsBucket = []byte("attempts")

	wifiConnectionKey = []byte("wifiConnection")
)

// DB persists the station settings and the history of connection attempts.
type DB struct {
	*bbolt.DB
	path string
}

// Open opens or creates station.db inside dataDir.
func Open(dataDir string) (*DB, error) {
	err := os.MkdirAll(dataDir, 0700)
	if err != nil {
		return nil, errors.Errorf("could not create data dir %v: %v", dataDir, err)
	}

	path := filepath.Join(dataDir, dbName)

	bdb, err := bbolt.Open(path, dbFilePermission, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, errors.Errorf("could not open %v: %v", path, err)
	}

	db := &DB{
		DB:   bdb,
		path: path,
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, bucket := range [][]byte{settingsBucket, attemptsBucket} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		bdb.Close()
		return nil, errors.Errorf("could not create buckets: %v", err)
	}

	return db, nil
}

// Path returns the location of the database file.
func (db *DB) Path() string {
	return db.path
}
