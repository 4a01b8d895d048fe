package agent

import (
	"encoding/binary"
	"encoding/json"
	"time"

	pkgerrors "github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"
)

var (
	historyBucket  = []byte("history")
	lastRunBucket  = []byte("last_run")
	metaBucket     = []byte("meta")
	lastCalibKey   = []byte("last_calibration")
	historyBuckets = [][]byte{historyBucket, lastRunBucket, metaBucket}
)

// HistoryEntry records one executed task.
type HistoryEntry struct {
	TaskID  string    `json:"taskID"`
	Summary string    `json:"summary"`
	Time    time.Time `json:"time"`
	Error   string    `json:"error,omitempty"`
}

// History persists executed tasks and the last automatic calibration.
type History struct {
	db *bolt.DB
}

// OpenHistory opens (or creates) the bolt database at path.
func OpenHistory(path string) (*History, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to open history %s", path)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, b := range historyBuckets {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, pkgerrors.Wrap(err, "failed to create history buckets")
	}
	return &History{db: db}, nil
}

func (h *History) Close() error {
	return h.db.Close()
}

// Record appends e and remembers it as the last run of its task.
func (h *History) Record(e HistoryEntry) error {
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return h.db.Update(func(tx *bolt.Tx) error {
		hb := tx.Bucket(historyBucket)
		seq, err := hb.NextSequence()
		if err != nil {
			return err
		}
		if err := hb.Put(itob(seq), b); err != nil {
			return err
		}
		if e.TaskID == "" {
			return nil
		}
		ts, err := e.Time.MarshalText()
		if err != nil {
			return err
		}
		return tx.Bucket(lastRunBucket).Put([]byte(e.TaskID), ts)
	})
}

// Recent returns up to n entries, newest first.
func (h *History) Recent(n int) ([]HistoryEntry, error) {
	var out []HistoryEntry
	err := h.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(historyBucket).Cursor()
		for k, v := c.Last(); k != nil && len(out) < n; k, v = c.Prev() {
			var e HistoryEntry
			if err := json.Unmarshal(v, &e); err != nil {
				return pkgerrors.Wrapf(err, "corrupt history entry %d", binary.BigEndian.Uint64(k))
			}
			out = append(out, e)
		}
		return nil
	})
	return out, err
}

// LastRun returns when task id last ran.
func (h *History) LastRun(id string) (time.Time, bool, error) {
	return h.readTime(lastRunBucket, []byte(id))
}

// LastCalibration returns when the periodic calibration last fired.
func (h *History) LastCalibration() (time.Time, bool, error) {
	return h.readTime(metaBucket, lastCalibKey)
}

func (h *History) SetLastCalibration(t time.Time) error {
	ts, err := t.MarshalText()
	if err != nil {
		return err
	}
	return h.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(metaBucket).Put(lastCalibKey, ts)
	})
}

func (h *History) readTime(bucket, key []byte) (time.Time, bool, error) {
	var t time.Time
	var found bool
	err := h.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucket).Get(key)
		if v == nil {
			return nil
		}
		found = true
		return t.UnmarshalText(v)
	})
	return t, found, err
}

func itob(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}
