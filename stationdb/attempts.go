package stationdb

import (
	"encoding/binary"
	"encoding/json"
	"time"

	"github.com/go-errors/errors"
	"github.com/the-lightning-land/stationd/radio"
	"github.com/the-lightning-land/stationd/station"
	"go.etcd.io/bbolt"
)

// Attempt is a finished connection attempt as kept in the history.
type Attempt struct {
	Id          uint64          `json:"id"`
	Ssid        string          `json:"ssid"`
	AuthMode    radio.AuthMode  `json:"authMode"`
	Outcome     station.Outcome `json:"outcome"`
	Retries     int             `json:"retries"`
	Connects    int             `json:"connects"`
	Disconnects int             `json:"disconnects"`
	Reason      string          `json:"reason,omitempty"`
	IP          string          `json:"ip,omitempty"`
	Started     time.Time       `json:"started"`
	Finished    time.Time       `json:"finished"`
}

// AttemptFromStation converts the coordinator's summary.
func AttemptFromStation(a *station.Attempt) *Attempt {
	attempt := &Attempt{
		Ssid:        a.Ssid,
		AuthMode:    a.AuthMode,
		Outcome:     a.Outcome,
		Retries:     a.Retries,
		Connects:    a.Connects,
		Disconnects: a.Disconnects,
		Reason:      a.Reason,
		Started:     a.Started,
		Finished:    a.Finished,
	}

	if a.IP != nil {
		attempt.IP = a.IP.String()
	}

	return attempt
}

// AddAttempt appends the attempt to the history and assigns its Id.
func (db *DB) AddAttempt(attempt *Attempt) error {
	return db.Update(func(tx *bbolt.Tx) error {
		bucket, err := tx.CreateBucketIfNotExists(attemptsBucket)
		if err != nil {
			return err
		}

		id, err := bucket.NextSequence()
		if err != nil {
			return errors.Errorf("could not get next attempt id: %v", err)
		}

		attempt.Id = id

		payload, err := json.Marshal(attempt)
		if err != nil {
			return errors.Errorf("could not marshal attempt: %v", err)
		}

		return bucket.Put(attemptKey(id), payload)
	})
}

// Attempts returns up to limit attempts, newest first. A limit of zero or
// less returns all of them.
func (db *DB) Attempts(limit int) ([]*Attempt, error) {
	attempts := []*Attempt{}

	err := db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(attemptsBucket)
		if bucket == nil {
			return nil
		}

		c := bucket.Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			if limit > 0 && len(attempts) >= limit {
				break
			}

			attempt := &Attempt{}
			if err := json.Unmarshal(v, attempt); err != nil {
				return errors.Errorf("could not unmarshal attempt %x: %v", k, err)
			}

			attempts = append(attempts, attempt)
		}

		return nil
	})

	if err != nil {
		return nil, err
	}

	return attempts, nil
}

// keys sort in insertion order
func attemptKey(id uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, id)
	return key
}
