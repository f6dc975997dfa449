package storage

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/autobot/fleet/pkg/types"
	bolt "go.etcd.io/bbolt"
)

var (
	// Bucket names
	bucketNodes        = []byte("nodes")
	bucketRoles        = []byte("roles")
	bucketNodeRoles    = []byte("node_roles")
	bucketCodeSources  = []byte("code_sources")
	bucketCredentials  = []byte("credentials")
	bucketSchedules    = []byte("schedules")
	bucketPlaybookRuns = []byte("playbook_runs")
)

// BoltStore implements Store interface using BoltDB
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore creates a new BoltDB-backed store
func NewBoltStore(dataDir string) (*BoltStore, error) {
	dbPath := filepath.Join(dataDir, "fleet.db")

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Create buckets
	err = db.Update(func(tx *bolt.Tx) error {
		buckets := [][]byte{
			bucketNodes,
			bucketRoles,
			bucketNodeRoles,
			bucketCodeSources,
			bucketCredentials,
			bucketSchedules,
			bucketPlaybookRuns,
		}

		for _, bucket := range buckets {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})

	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

// Close closes the database
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// nodeRoleKey builds the composite key for a (node, role) assignment row.
func nodeRoleKey(nodeID, roleName string) []byte {
	return []byte(nodeID + "/" + roleName)
}

// Node operations
func (s *BoltStore) CreateNode(node *types.Node) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketNodes)
		data, err := json.Marshal(node)
		if err != nil {
			return err
		}
		return b.Put([]byte(node.ID), data)
	})
}

func (s *BoltStore) GetNode(id string) (*types.Node, error) {
	var node types.Node
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketNodes)
		data := b.Get([]byte(id))
		if data == nil {
			return fmt.Errorf("node %s: %w", id, types.ErrNotFound)
		}
		return json.Unmarshal(data, &node)
	})
	if err != nil {
		return nil, err
	}
	return &node, nil
}

func (s *BoltStore) ListNodes() ([]*types.Node, error) {
	var nodes []*types.Node
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketNodes)
		return b.ForEach(func(k, v []byte) error {
			var node types.Node
			if err := json.Unmarshal(v, &node); err != nil {
				return err
			}
			nodes = append(nodes, &node)
			return nil
		})
	})
	return nodes, err
}

func (s *BoltStore) UpdateNode(node *types.Node) error {
	return s.CreateNode(node) // Same as create (upsert)
}

func (s *BoltStore) DeleteNode(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketNodes)
		return b.Delete([]byte(id))
	})
}

// Role operations
func (s *BoltStore) CreateRole(role *types.Role) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketRoles)
		data, err := json.Marshal(role)
		if err != nil {
			return err
		}
		return b.Put([]byte(role.Name), data)
	})
}

func (s *BoltStore) GetRole(name string) (*types.Role, error) {
	var role types.Role
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketRoles)
		data := b.Get([]byte(name))
		if data == nil {
			return fmt.Errorf("role %s: %w", name, types.ErrNotFound)
		}
		return json.Unmarshal(data, &role)
	})
	if err != nil {
		return nil, err
	}
	return &role, nil
}

func (s *BoltStore) ListRoles() ([]*types.Role, error) {
	var roles []*types.Role
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketRoles)
		return b.ForEach(func(k, v []byte) error {
			var role types.Role
			if err := json.Unmarshal(v, &role); err != nil {
				return err
			}
			roles = append(roles, &role)
			return nil
		})
	})
	return roles, err
}

func (s *BoltStore) UpdateRole(role *types.Role) error {
	return s.CreateRole(role)
}

func (s *BoltStore) DeleteRole(name string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketRoles)
		return b.Delete([]byte(name))
	})
}

// NodeRole operations
func (s *BoltStore) PutNodeRole(nr *types.NodeRole) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketNodeRoles)
		data, err := json.Marshal(nr)
		if err != nil {
			return err
		}
		return b.Put(nodeRoleKey(nr.NodeID, nr.RoleName), data)
	})
}

func (s *BoltStore) GetNodeRole(nodeID, roleName string) (*types.NodeRole, error) {
	var nr types.NodeRole
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketNodeRoles)
		data := b.Get(nodeRoleKey(nodeID, roleName))
		if data == nil {
			return fmt.Errorf("assignment %s/%s: %w", nodeID, roleName, types.ErrNotFound)
		}
		return json.Unmarshal(data, &nr)
	})
	if err != nil {
		return nil, err
	}
	return &nr, nil
}

func (s *BoltStore) ListNodeRoles() ([]*types.NodeRole, error) {
	var assignments []*types.NodeRole
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketNodeRoles)
		return b.ForEach(func(k, v []byte) error {
			var nr types.NodeRole
			if err := json.Unmarshal(v, &nr); err != nil {
				return err
			}
			assignments = append(assignments, &nr)
			return nil
		})
	})
	return assignments, err
}

func (s *BoltStore) ListNodeRolesByNode(nodeID string) ([]*types.NodeRole, error) {
	var assignments []*types.NodeRole
	prefix := []byte(nodeID + "/")
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketNodeRoles).Cursor()
		for k, v := c.Seek(prefix); k != nil && len(k) >= len(prefix) && string(k[:len(prefix)]) == string(prefix); k, v = c.Next() {
			var nr types.NodeRole
			if err := json.Unmarshal(v, &nr); err != nil {
				return err
			}
			assignments = append(assignments, &nr)
		}
		return nil
	})
	return assignments, err
}

func (s *BoltStore) DeleteNodeRole(nodeID, roleName string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketNodeRoles)
		return b.Delete(nodeRoleKey(nodeID, roleName))
	})
}

// CodeSource operations
func (s *BoltStore) PutCodeSource(src *types.CodeSource) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketCodeSources)
		data, err := json.Marshal(src)
		if err != nil {
			return err
		}
		return b.Put([]byte(src.ID), data)
	})
}

func (s *BoltStore) GetCodeSource(id string) (*types.CodeSource, error) {
	var src types.CodeSource
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketCodeSources)
		data := b.Get([]byte(id))
		if data == nil {
			return fmt.Errorf("code source %s: %w", id, types.ErrNotFound)
		}
		return json.Unmarshal(data, &src)
	})
	if err != nil {
		return nil, err
	}
	return &src, nil
}

func (s *BoltStore) GetActiveCodeSource() (*types.CodeSource, error) {
	var active *types.CodeSource
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketCodeSources)
		return b.ForEach(func(k, v []byte) error {
			var src types.CodeSource
			if err := json.Unmarshal(v, &src); err != nil {
				return err
			}
			if src.IsActive {
				active = &src
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	if active == nil {
		return nil, fmt.Errorf("active code source: %w", types.ErrNotFound)
	}
	return active, nil
}

func (s *BoltStore) ListCodeSources() ([]*types.CodeSource, error) {
	var sources []*types.CodeSource
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketCodeSources)
		return b.ForEach(func(k, v []byte) error {
			var src types.CodeSource
			if err := json.Unmarshal(v, &src); err != nil {
				return err
			}
			sources = append(sources, &src)
			return nil
		})
	})
	return sources, err
}

// ActivateCodeSource marks one source active and deactivates the previous
// active record in the same transaction, preserving the single-active
// invariant even across a crash.
func (s *BoltStore) ActivateCodeSource(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketCodeSources)

		target := b.Get([]byte(id))
		if target == nil {
			return fmt.Errorf("code source %s: %w", id, types.ErrNotFound)
		}

		err := b.ForEach(func(k, v []byte) error {
			var src types.CodeSource
			if err := json.Unmarshal(v, &src); err != nil {
				return err
			}
			changed := false
			if src.ID == id && !src.IsActive {
				src.IsActive = true
				changed = true
			} else if src.ID != id && src.IsActive {
				src.IsActive = false
				changed = true
			}
			if changed {
				data, err := json.Marshal(&src)
				if err != nil {
					return err
				}
				if err := b.Put([]byte(src.ID), data); err != nil {
					return err
				}
			}
			return nil
		})
		return err
	})
}

func (s *BoltStore) DeleteCodeSource(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketCodeSources)
		return b.Delete([]byte(id))
	})
}

// Credential operations
func (s *BoltStore) CreateCredential(cred *types.Credential) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketCredentials)
		data, err := json.Marshal(cred)
		if err != nil {
			return err
		}
		return b.Put([]byte(cred.ID), data)
	})
}

func (s *BoltStore) GetCredential(id string) (*types.Credential, error) {
	var cred types.Credential
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketCredentials)
		data := b.Get([]byte(id))
		if data == nil {
			return fmt.Errorf("credential %s: %w", id, types.ErrNotFound)
		}
		return json.Unmarshal(data, &cred)
	})
	if err != nil {
		return nil, err
	}
	return &cred, nil
}

func (s *BoltStore) ListCredentials() ([]*types.Credential, error) {
	var creds []*types.Credential
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketCredentials)
		return b.ForEach(func(k, v []byte) error {
			var cred types.Credential
			if err := json.Unmarshal(v, &cred); err != nil {
				return err
			}
			creds = append(creds, &cred)
			return nil
		})
	})
	return creds, err
}

func (s *BoltStore) ListCredentialsByNode(nodeID string) ([]*types.Credential, error) {
	creds, err := s.ListCredentials()
	if err != nil {
		return nil, err
	}

	var filtered []*types.Credential
	for _, cred := range creds {
		if cred.NodeID == nodeID {
			filtered = append(filtered, cred)
		}
	}
	return filtered, nil
}

func (s *BoltStore) UpdateCredential(cred *types.Credential) error {
	return s.CreateCredential(cred)
}

func (s *BoltStore) DeleteCredential(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketCredentials)
		return b.Delete([]byte(id))
	})
}

// Schedule operations
func (s *BoltStore) CreateSchedule(schedule *types.Schedule) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSchedules)
		data, err := json.Marshal(schedule)
		if err != nil {
			return err
		}
		return b.Put([]byte(schedule.ID), data)
	})
}

func (s *BoltStore) GetSchedule(id string) (*types.Schedule, error) {
	var schedule types.Schedule
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSchedules)
		data := b.Get([]byte(id))
		if data == nil {
			return fmt.Errorf("schedule %s: %w", id, types.ErrNotFound)
		}
		return json.Unmarshal(data, &schedule)
	})
	if err != nil {
		return nil, err
	}
	return &schedule, nil
}

func (s *BoltStore) ListSchedules() ([]*types.Schedule, error) {
	var schedules []*types.Schedule
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSchedules)
		return b.ForEach(func(k, v []byte) error {
			var schedule types.Schedule
			if err := json.Unmarshal(v, &schedule); err != nil {
				return err
			}
			schedules = append(schedules, &schedule)
			return nil
		})
	})
	return schedules, err
}

func (s *BoltStore) UpdateSchedule(schedule *types.Schedule) error {
	return s.CreateSchedule(schedule)
}

func (s *BoltStore) DeleteSchedule(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSchedules)
		return b.Delete([]byte(id))
	})
}

// PlaybookRun operations
func (s *BoltStore) PutPlaybookRun(run *types.PlaybookRun) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketPlaybookRuns)
		data, err := json.Marshal(run)
		if err != nil {
			return err
		}
		return b.Put([]byte(run.ID), data)
	})
}

func (s *BoltStore) GetPlaybookRun(id string) (*types.PlaybookRun, error) {
	var run types.PlaybookRun
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketPlaybookRuns)
		data := b.Get([]byte(id))
		if data == nil {
			return fmt.Errorf("playbook run %s: %w", id, types.ErrNotFound)
		}
		return json.Unmarshal(data, &run)
	})
	if err != nil {
		return nil, err
	}
	return &run, nil
}

func (s *BoltStore) ListPlaybookRuns() ([]*types.PlaybookRun, error) {
	var runs []*types.PlaybookRun
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketPlaybookRuns)
		return b.ForEach(func(k, v []byte) error {
			var run types.PlaybookRun
			if err := json.Unmarshal(v, &run); err != nil {
				return err
			}
			runs = append(runs, &run)
			return nil
		})
	})
	return runs, err
}
