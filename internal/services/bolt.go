package services

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/MegaGrindStone/elf-therapist/internal/models"
	bolt "go.etcd.io/bbolt"
)

// BoltDB implements the Store interface using a BoltDB backend for persistent storage of sessions, their
// messages and the conversation log.
type BoltDB struct {
	db *bolt.DB
}

var (
	sessionsBucket        = []byte("sessions")
	conversationLogBucket = []byte("conversation_log")
)

// NewBoltDB creates a new BoltDB instance with the specified file path. It initializes the database
// with required buckets and returns an error if the database cannot be opened or initialized. The
// database file is created with 0600 permissions if it doesn't exist.
func NewBoltDB(path string) (BoltDB, error) {
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return BoltDB{}, fmt.Errorf("failed to open bolt db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{sessionsBucket, conversationLogBucket} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return BoltDB{}, err
	}

	return BoltDB{db: db}, nil
}

// Close releases the database file.
func (b BoltDB) Close() error {
	return b.db.Close()
}

func messageBucketName(sessionID string) []byte {
	return []byte(fmt.Sprintf("session-%s", sessionID))
}

// Session retrieves the session with the given ID, or models.ErrSessionNotFound.
func (b BoltDB) Session(_ context.Context, id string) (models.Session, error) {
	var sess models.Session
	err := b.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(sessionsBucket).Get([]byte(id))
		if v == nil {
			return models.ErrSessionNotFound
		}
		if err := json.Unmarshal(v, &sess); err != nil {
			return fmt.Errorf("failed to unmarshal session: %w", err)
		}
		return nil
	})
	return sess, err
}

// AddSession stores a new session and creates its message bucket.
func (b BoltDB) AddSession(_ context.Context, sess models.Session) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(messageBucketName(sess.ID)); err != nil {
			return fmt.Errorf("failed to create message bucket: %w", err)
		}

		v, err := json.Marshal(sess)
		if err != nil {
			return fmt.Errorf("failed to marshal session: %w", err)
		}

		return tx.Bucket(sessionsBucket).Put([]byte(sess.ID), v)
	})
}

// Messages retrieves all messages associated with the specified session ID, in the order they were added.
func (b BoltDB) Messages(_ context.Context, sessionID string) ([]models.Message, error) {
	var messages []models.Message
	err := b.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(messageBucketName(sessionID))
		if b == nil {
			return nil
		}

		return b.ForEach(func(_, v []byte) error {
			var message models.Message
			if err := json.Unmarshal(v, &message); err != nil {
				return fmt.Errorf("failed to unmarshal message: %w", err)
			}
			messages = append(messages, message)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return messages, nil
}

// AddMessage stores a new message in the specified session's message bucket. It generates a unique ID for
// the message by combining a sequence number with the message's original ID, and returns the new ID.
func (b BoltDB) AddMessage(_ context.Context, sessionID string, message models.Message) (string, error) {
	var newID string
	err := b.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(messageBucketName(sessionID))
		if b == nil {
			return models.ErrSessionNotFound
		}

		idPrefix, err := b.NextSequence()
		if err != nil {
			return fmt.Errorf("failed to get next sequence: %w", err)
		}
		// Zero padding keeps the byte order of keys equal to the insertion order.
		newID = fmt.Sprintf("%020d-%s", idPrefix, message.ID)
		message.ID = newID

		v, err := json.Marshal(message)
		if err != nil {
			return fmt.Errorf("failed to marshal message: %w", err)
		}

		return b.Put([]byte(newID), v)
	})

	return newID, err
}

// AddConversationLog appends an entry to the conversation log.
func (b BoltDB) AddConversationLog(_ context.Context, entry models.ConversationLogEntry) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(conversationLogBucket)

		seq, err := b.NextSequence()
		if err != nil {
			return fmt.Errorf("failed to get next sequence: %w", err)
		}

		v, err := json.Marshal(entry)
		if err != nil {
			return fmt.Errorf("failed to marshal conversation log entry: %w", err)
		}

		key := make([]byte, 8)
		binary.BigEndian.PutUint64(key, seq)
		return b.Put(key, v)
	})
}

// conversationLog returns the conversation log entries of a session, oldest first.
func (b BoltDB) conversationLog(_ context.Context, sessionID string) ([]models.ConversationLogEntry, error) {
	var entries []models.ConversationLogEntry
	err := b.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(conversationLogBucket).ForEach(func(_, v []byte) error {
			var entry models.ConversationLogEntry
			if err := json.Unmarshal(v, &entry); err != nil {
				return fmt.Errorf("failed to unmarshal conversation log entry: %w", err)
			}
			if entry.SessionID == sessionID {
				entries = append(entries, entry)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}
