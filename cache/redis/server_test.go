package redis

import (
	"bufio"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"
)

// fakeServer speaks enough RESP for the commands Store issues.
type fakeServer struct {
	ln       net.Listener
	password string

	mu      sync.Mutex
	data    map[string]fakeEntry
	conns   int
	queries []string
}

type fakeEntry struct {
	value     string
	expiresAt time.Time
}

func newFakeServer(t *testing.T, password string) *fakeServer {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	s := &fakeServer{ln: ln, password: password, data: make(map[string]fakeEntry)}
	go s.serve()
	t.Cleanup(func() { _ = ln.Close() })
	return s
}

func (s *fakeServer) Addr() string { return s.ln.Addr().String() }

func (s *fakeServer) Conns() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conns
}

func (s *fakeServer) serve() {
	for {
		c, err := s.ln.Accept()
		if err != nil {
			return
		}
		s.mu.Lock()
		s.conns++
		s.mu.Unlock()
		go s.handle(c)
	}
}

func (s *fakeServer) handle(c net.Conn) {
	defer c.Close()
	r := bufio.NewReader(c)
	authed := s.password == ""
	for {
		reply, err := readReply(r)
		if err != nil {
			return
		}
		raw, ok := reply.([]any)
		if !ok || len(raw) == 0 {
			return
		}
		args := make([]string, len(raw))
		for i, a := range raw {
			b, _ := a.([]byte)
			args[i] = string(b)
		}
		cmd := strings.ToUpper(args[0])
		if cmd == "AUTH" {
			if len(args) == 2 && args[1] == s.password {
				authed = true
				_, _ = c.Write([]byte("+OK\r\n"))
			} else {
				_, _ = c.Write([]byte("-WRONGPASS invalid password\r\n"))
			}
			continue
		}
		if !authed {
			_, _ = c.Write([]byte("-NOAUTH Authentication required.\r\n"))
			continue
		}
		_, _ = c.Write(s.exec(cmd, args[1:]))
	}
}

func (s *fakeServer) exec(cmd string, args []string) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queries = append(s.queries, cmd)
	now := time.Now()
	switch cmd {
	case "PING":
		return []byte("+PONG\r\n")
	case "SELECT":
		return []byte("+OK\r\n")
	case "SET":
		e := fakeEntry{value: args[1]}
		if len(args) == 4 && strings.EqualFold(args[2], "PX") {
			ms, _ := strconv.Atoi(args[3])
			e.expiresAt = now.Add(time.Duration(ms) * time.Millisecond)
		}
		s.data[args[0]] = e
		return []byte("+OK\r\n")
	case "GET":
		e, ok := s.data[args[0]]
		if !ok || (!e.expiresAt.IsZero() && !e.expiresAt.After(now)) {
			return []byte("$-1\r\n")
		}
		return []byte("$" + strconv.Itoa(len(e.value)) + "\r\n" + e.value + "\r\n")
	case "DEL":
		_, ok := s.data[args[0]]
		delete(s.data, args[0])
		if ok {
			return []byte(":1\r\n")
		}
		return []byte(":0\r\n")
	case "SCAN":
		prefix := strings.TrimSuffix(args[2], "*")
		var keys []string
		for k, e := range s.data {
			if strings.HasPrefix(k, prefix) && (e.expiresAt.IsZero() || e.expiresAt.After(now)) {
				keys = append(keys, k)
			}
		}
		out := "*2\r\n$1\r\n0\r\n*" + strconv.Itoa(len(keys)) + "\r\n"
		for _, k := range keys {
			out += "$" + strconv.Itoa(len(k)) + "\r\n" + k + "\r\n"
		}
		return []byte(out)
	default:
		return []byte("-ERR unknown command '" + cmd + "'\r\n")
	}
}
