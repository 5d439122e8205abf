package redis

// Key layout, relative to the store prefix (default "backlog:"):
//
//	jobs                 hash: record id -> msgpack record
//	dependents:{parent}  set of record ids that depend on parent

const defaultPrefix = "backlog:"

func (s *Store) jobsKey() string { return s.prefix + "jobs" }

func (s *Store) dependentsKey(parent string) string {
	return s.prefix + "dependents:" + parent
}
