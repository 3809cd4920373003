package server

import (
	"strconv"
	"strings"
	"time"

	"golang.org/x/exp/slices"

	"github.com/dreamware/quillstore/internal/cluster"
	"github.com/dreamware/quillstore/internal/resp"
	"github.com/dreamware/quillstore/internal/store"
)

// writeCommands is the set of commands that mutate the store. Used for the
// replica read-only check; replication forwards only commands that
// actually applied.
var writeCommands = map[string]bool{
	"set": true, "del": true, "expire": true, "append": true,
	"lpush": true, "rpush": true, "lpop": true, "rpop": true,
	"lset": true, "linsert": true,
	"hset": true, "hdel": true,
	"sadd": true, "srem": true,
}

// keyedCommands is every command whose first argument is a key and which
// is therefore subject to slot routing.
var keyedCommands = map[string]bool{
	"get": true, "set": true, "append": true, "del": true, "exists": true,
	"type": true, "expire": true, "ttl": true,
	"lpush": true, "rpush": true, "lpop": true, "rpop": true,
	"llen": true, "lrange": true, "lset": true, "linsert": true,
	"hset": true, "hget": true, "hdel": true, "hgetall": true, "hlen": true,
	"sadd": true, "srem": true, "scard": true, "smembers": true,
	"sismember": true, "sscan": true,
}

// multiKeyCommands treat every argument as a key; all of them must route
// to the same shard.
var multiKeyCommands = map[string]bool{"del": true, "exists": true}

func wrongArgs(name string) resp.Value {
	return resp.Err("ERR wrong number of arguments for '%s' command", name)
}

var wrongTypeReply = resp.Err("WRONGTYPE Operation against a key holding the wrong kind of value")

var notIntegerReply = resp.Err("ERR value is not an integer or out of range")

// dispatch routes one parsed command: connection-level commands first, then
// slot ownership, then role, then execution against the store. A nil reply
// means the command wrote its own frames (subscribe family).
func (s *Server) dispatch(c *conn, cmd *resp.Command) *resp.Value {
	switch cmd.Name {
	case "ping":
		switch len(cmd.Args) {
		case 0:
			return frame(resp.Simple("PONG"))
		case 1:
			return frame(resp.Bulk(cmd.Args[0]))
		default:
			return frame(wrongArgs(cmd.Name))
		}

	case "echo":
		if len(cmd.Args) != 1 {
			return frame(wrongArgs(cmd.Name))
		}
		return frame(resp.Bulk(cmd.Args[0]))

	case "peer":
		// Replication handshake: the shard primary introduces itself and
		// the connection is trusted for mutations from then on. The
		// cluster is a closed deployment; peers are not authenticated
		// beyond the topology.
		if len(cmd.Args) != 1 {
			return frame(wrongArgs(cmd.Name))
		}
		c.peer = true
		s.logf("replication peer connected from %s (%s)", cmd.Args[0], c.ID())
		return frame(resp.OK)

	case "subscribe":
		return s.subscribe(c, cmd)

	case "unsubscribe":
		return s.unsubscribe(c, cmd)

	case "publish":
		if len(cmd.Args) != 2 {
			return frame(wrongArgs(cmd.Name))
		}
		n := s.registry.Publish(cmd.Args[0], cmd.Args[1])
		return frame(resp.Int64(int64(n)))
	}

	if !keyedCommands[cmd.Name] {
		return frame(resp.Err("ERR unknown command '%s'", cmd.Name))
	}
	key := cmd.Key()
	if key == "" {
		return frame(wrongArgs(cmd.Name))
	}

	// Slot ownership: misrouted commands get a redirect naming the owning
	// primary and never touch the local store. Multi-key commands must
	// keep all their keys on one shard.
	slot := cluster.SlotForKey(key)
	owner, ok := s.topo.Owner(slot)
	if !ok {
		return frame(resp.Err("ERR slot %d has no owner", slot))
	}
	if multiKeyCommands[cmd.Name] {
		for _, k := range cmd.Args[1:] {
			o, ok := s.topo.Owner(cluster.SlotForKey(k))
			if !ok || o.Primary != owner.Primary {
				return frame(resp.Err("CROSSSLOT Keys in request don't hash to the same slot"))
			}
		}
	}
	if !s.self.Shard.Owns(slot) {
		return frame(resp.Err("MOVED %d %s", slot, owner.Primary))
	}

	if writeCommands[cmd.Name] {
		// Replicas take mutations only over the replication link.
		if s.self.Role == cluster.RoleReplica && !c.peer {
			return frame(resp.Err("READONLY You can't write against a read only replica."))
		}

		// Apply and fan out under one lock: a second writer to the same
		// key cannot enqueue its command to the replicas between this
		// one's store mutation and its enqueue, so replicas always
		// receive writes in store-apply order. Both fan-out paths are
		// non-blocking enqueues, never replica or subscriber IO.
		s.applyMu.Lock()
		defer s.applyMu.Unlock()
		v, mutated := s.execute(cmd)
		if mutated {
			s.afterApply(c, cmd)
		}
		return v
	}

	v, _ := s.execute(cmd)
	return v
}

func frame(v resp.Value) *resp.Value { return &v }

func reply(v resp.Value) (*resp.Value, bool) { return &v, false }

func applied(v resp.Value) (*resp.Value, bool) { return &v, true }

// execute applies a keyed command to the store and maps its outcome to a
// RESP reply expression.
func (s *Server) execute(cmd *resp.Command) (*resp.Value, bool) {
	args := cmd.Args

	switch cmd.Name {
	case "get":
		if len(args) != 1 {
			return reply(wrongArgs(cmd.Name))
		}
		v, err := s.store.Get(args[0])
		if err != nil {
			return storeErr(err)
		}
		return reply(resp.Bulk(v))

	case "set":
		if len(args) < 2 {
			return reply(wrongArgs(cmd.Name))
		}
		ttl, ok := parseSetTTL(args[2:])
		if !ok {
			return reply(notIntegerReply)
		}
		s.store.Set(args[0], args[1], ttl)
		return applied(resp.OK)

	case "append":
		if len(args) != 2 {
			return reply(wrongArgs(cmd.Name))
		}
		n, err := s.store.Append(args[0], args[1])
		if err != nil {
			return storeErr(err)
		}
		return applied(resp.Int64(int64(n)))

	case "del":
		removed := s.store.Del(args...)
		v, _ := applied(resp.Int64(int64(removed)))
		return v, removed > 0

	case "exists":
		return reply(resp.Int64(int64(s.store.Exists(args...))))

	case "type":
		if len(args) != 1 {
			return reply(wrongArgs(cmd.Name))
		}
		return reply(resp.Simple(s.store.Type(args[0])))

	case "expire":
		if len(args) != 2 {
			return reply(wrongArgs(cmd.Name))
		}
		secs, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil {
			return reply(notIntegerReply)
		}
		if !s.store.Expire(args[0], time.Duration(secs)*time.Second) {
			return reply(resp.Int64(0))
		}
		return applied(resp.Int64(1))

	case "ttl":
		if len(args) != 1 {
			return reply(wrongArgs(cmd.Name))
		}
		return reply(resp.Int64(s.store.TTL(args[0])))

	case "lpush", "rpush":
		if len(args) < 2 {
			return reply(wrongArgs(cmd.Name))
		}
		push := s.store.RPush
		if cmd.Name == "lpush" {
			push = s.store.LPush
		}
		n, err := push(args[0], args[1:]...)
		if err != nil {
			return storeErr(err)
		}
		return applied(resp.Int64(int64(n)))

	case "lpop", "rpop":
		if len(args) != 1 {
			return reply(wrongArgs(cmd.Name))
		}
		pop := s.store.LPop
		if cmd.Name == "rpop" {
			pop = s.store.RPop
		}
		v, err := pop(args[0])
		if err == store.ErrKeyNotFound {
			return reply(resp.NullBulk())
		}
		if err != nil {
			return storeErr(err)
		}
		return applied(resp.Bulk(v))

	case "llen":
		if len(args) != 1 {
			return reply(wrongArgs(cmd.Name))
		}
		n, err := s.store.LLen(args[0])
		if err != nil {
			return storeErr(err)
		}
		return reply(resp.Int64(int64(n)))

	case "lrange":
		if len(args) != 3 {
			return reply(wrongArgs(cmd.Name))
		}
		start, err1 := strconv.Atoi(args[1])
		stop, err2 := strconv.Atoi(args[2])
		if err1 != nil || err2 != nil {
			return reply(notIntegerReply)
		}
		elems, err := s.store.LRange(args[0], start, stop)
		if err != nil {
			return storeErr(err)
		}
		return reply(resp.BulkArray(elems...))

	case "lset":
		if len(args) != 3 {
			return reply(wrongArgs(cmd.Name))
		}
		index, err := strconv.Atoi(args[1])
		if err != nil {
			return reply(notIntegerReply)
		}
		switch err := s.store.LSet(args[0], index, args[2]); err {
		case nil:
			return applied(resp.OK)
		case store.ErrKeyNotFound:
			return reply(resp.Err("ERR no such key"))
		case store.ErrIndexOutOfRange:
			return reply(resp.Err("ERR index out of range"))
		default:
			return storeErr(err)
		}

	case "linsert":
		if len(args) != 4 {
			return reply(wrongArgs(cmd.Name))
		}
		var before bool
		switch strings.ToLower(args[1]) {
		case "before":
			before = true
		case "after":
			before = false
		default:
			return reply(resp.Err("ERR syntax error"))
		}
		n, err := s.store.LInsert(args[0], before, args[2], args[3])
		if err != nil {
			return storeErr(err)
		}
		v, _ := applied(resp.Int64(int64(n)))
		return v, n > 0

	case "hset":
		if len(args) < 3 || len(args)%2 == 0 {
			return reply(wrongArgs(cmd.Name))
		}
		n, err := s.store.HSet(args[0], args[1:]...)
		if err != nil {
			return storeErr(err)
		}
		return applied(resp.Int64(int64(n)))

	case "hget":
		if len(args) != 2 {
			return reply(wrongArgs(cmd.Name))
		}
		v, err := s.store.HGet(args[0], args[1])
		if err != nil {
			return storeErr(err)
		}
		return reply(resp.Bulk(v))

	case "hdel":
		if len(args) < 2 {
			return reply(wrongArgs(cmd.Name))
		}
		n, err := s.store.HDel(args[0], args[1:]...)
		if err != nil {
			return storeErr(err)
		}
		v, _ := applied(resp.Int64(int64(n)))
		return v, n > 0

	case "hgetall":
		if len(args) != 1 {
			return reply(wrongArgs(cmd.Name))
		}
		fields, err := s.store.HGetAll(args[0])
		if err != nil {
			return storeErr(err)
		}
		names := make([]string, 0, len(fields))
		for f := range fields {
			names = append(names, f)
		}
		slices.Sort(names)
		flat := make([]string, 0, len(fields)*2)
		for _, f := range names {
			flat = append(flat, f, fields[f])
		}
		return reply(resp.BulkArray(flat...))

	case "hlen":
		if len(args) != 1 {
			return reply(wrongArgs(cmd.Name))
		}
		n, err := s.store.HLen(args[0])
		if err != nil {
			return storeErr(err)
		}
		return reply(resp.Int64(int64(n)))

	case "sadd":
		if len(args) < 2 {
			return reply(wrongArgs(cmd.Name))
		}
		n, err := s.store.SAdd(args[0], args[1:]...)
		if err != nil {
			return storeErr(err)
		}
		v, _ := applied(resp.Int64(int64(n)))
		return v, n > 0

	case "srem":
		if len(args) < 2 {
			return reply(wrongArgs(cmd.Name))
		}
		n, err := s.store.SRem(args[0], args[1:]...)
		if err != nil {
			return storeErr(err)
		}
		v, _ := applied(resp.Int64(int64(n)))
		return v, n > 0

	case "scard":
		if len(args) != 1 {
			return reply(wrongArgs(cmd.Name))
		}
		n, err := s.store.SCard(args[0])
		if err != nil {
			return storeErr(err)
		}
		return reply(resp.Int64(int64(n)))

	case "smembers":
		if len(args) != 1 {
			return reply(wrongArgs(cmd.Name))
		}
		members, err := s.store.SMembers(args[0])
		if err != nil {
			return storeErr(err)
		}
		return reply(resp.BulkArray(members...))

	case "sscan":
		if len(args) < 1 || len(args) > 2 {
			return reply(wrongArgs(cmd.Name))
		}
		pattern := ""
		if len(args) == 2 {
			pattern = args[1]
		}
		members, err := s.store.SScan(args[0], pattern)
		if err != nil {
			return storeErr(err)
		}
		return reply(resp.BulkArray(members...))

	case "sismember":
		if len(args) != 2 {
			return reply(wrongArgs(cmd.Name))
		}
		ok, err := s.store.SIsMember(args[0], args[1])
		if err != nil {
			return storeErr(err)
		}
		if ok {
			return reply(resp.Int64(1))
		}
		return reply(resp.Int64(0))

	default:
		return reply(resp.Err("ERR unknown command '%s'", cmd.Name))
	}
}

// storeErr maps store sentinels to client-visible error replies. A type
// mismatch or missing key never aborts the connection.
func storeErr(err error) (*resp.Value, bool) {
	switch err {
	case store.ErrWrongType:
		return reply(wrongTypeReply)
	case store.ErrKeyNotFound:
		return reply(resp.NullBulk())
	default:
		return reply(resp.Err("ERR %v", err))
	}
}

// parseSetTTL parses trailing SET options: EX seconds or PX milliseconds.
// Returns ok=false on malformed options.
func parseSetTTL(opts []string) (time.Duration, bool) {
	var ttl time.Duration
	for i := 0; i < len(opts); i += 2 {
		if i+1 >= len(opts) {
			return 0, false
		}
		n, err := strconv.ParseInt(opts[i+1], 10, 64)
		if err != nil || n <= 0 {
			return 0, false
		}
		switch strings.ToLower(opts[i]) {
		case "ex":
			ttl = time.Duration(n) * time.Second
		case "px":
			ttl = time.Duration(n) * time.Millisecond
		default:
			return 0, false
		}
	}
	return ttl, true
}

// subscribe adds the connection to each named channel and writes the RESP
// subscribe confirmation per channel.
func (s *Server) subscribe(c *conn, cmd *resp.Command) *resp.Value {
	if len(cmd.Args) == 0 {
		return frame(wrongArgs(cmd.Name))
	}
	for _, channel := range cmd.Args {
		count := s.registry.Subscribe(c, channel)
		ack := resp.ArrayOf(resp.Bulk("subscribe"), resp.Bulk(channel), resp.Int64(int64(count)))
		if err := c.writer.Write(ack); err != nil {
			c.close()
			return nil
		}
	}
	return nil
}

// unsubscribe removes the connection from the named channels, or all of
// them when none are given, confirming each removal.
func (s *Server) unsubscribe(c *conn, cmd *resp.Command) *resp.Value {
	channels := cmd.Args
	if len(channels) == 0 {
		channels = s.registry.Subscriptions(c)
	}
	if len(channels) == 0 {
		ack := resp.ArrayOf(resp.Bulk("unsubscribe"), resp.NullBulk(), resp.Int64(0))
		if err := c.writer.Write(ack); err != nil {
			c.close()
		}
		return nil
	}
	for _, channel := range channels {
		count := s.registry.Unsubscribe(c, channel)
		ack := resp.ArrayOf(resp.Bulk("unsubscribe"), resp.Bulk(channel), resp.Int64(int64(count)))
		if err := c.writer.Write(ack); err != nil {
			c.close()
			return nil
		}
	}
	return nil
}

// afterApply fans a successfully applied mutation out: a document-change
// notification on the channel named by the key, then replication to the
// shard's replicas. Called with applyMu held; both targets are buffered
// enqueues, so the lock never waits on a subscriber or a replica.
func (s *Server) afterApply(src *conn, cmd *resp.Command) {
	if key := cmd.Key(); key != "" {
		s.registry.Publish(key, cmd.String())
	}
	if s.repl != nil && !src.peer {
		s.repl.Forward(cmd)
	}
}
