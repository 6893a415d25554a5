package statemachine

import (
	"bytes"
	"sync"

	"replkv/internal/domain"
	"replkv/internal/metrics"
	"replkv/internal/storage"
)

const displayQuery = "display"

var notFound = []byte("not found")

type QueryKind int

const (
	QueryGet QueryKind = iota
	QueryDump
)

func (k QueryKind) String() string {
	if k == QueryDump {
		return "dump"
	}
	return "get"
}

type Query struct {
	Kind QueryKind
	Key  string
}

// DecodeQuery maps the literal "display" to a dump; any other request is a
// key lookup on the exact bytes, whitespace included.
func DecodeQuery(data []byte) Query {
	if string(data) == displayQuery {
		return Query{Kind: QueryDump}
	}
	return Query{Kind: QueryGet, Key: string(data)}
}

var bufPool = sync.Pool{
	New: func() any { return new(bytes.Buffer) },
}

func getBuffer() *bytes.Buffer {
	buf := bufPool.Get().(*bytes.Buffer)
	buf.Reset()
	return buf
}

func pooledResult(buf *bytes.Buffer) *domain.LookupResult {
	return domain.NewLookupResult(buf.Bytes(), func() {
		bufPool.Put(buf)
	})
}

// Lookup answers a read-only query. The caller owns the result and must pass
// it to FreeLookupResult when finished.
func (sm *KVStateMachine) Lookup(query []byte) *domain.LookupResult {
	q := DecodeQuery(query)
	buf := getBuffer()

	switch q.Kind {
	case QueryDump:
		sm.store.View(func(v *storage.View) {
			renderDisplay(buf, v)
		})
		metrics.LookupsTotal.WithLabelValues(q.Kind.String(), "ok").Inc()
	default:
		if val, ok := sm.store.Get(q.Key); ok {
			buf.WriteString(val)
			metrics.LookupsTotal.WithLabelValues(q.Kind.String(), "hit").Inc()
		} else {
			buf.Write(notFound)
			metrics.LookupsTotal.WithLabelValues(q.Kind.String(), "miss").Inc()
		}
	}

	return pooledResult(buf)
}

func (sm *KVStateMachine) FreeLookupResult(r *domain.LookupResult) {
	r.Release()
}

// renderDisplay writes `{ "k":"v", ... }` in key order; an empty store is `{ }`.
func renderDisplay(buf *bytes.Buffer, v *storage.View) {
	buf.WriteString("{ ")
	v.Ascend(func(key, value string) bool {
		buf.WriteByte('"')
		buf.WriteString(key)
		buf.WriteString(`":"`)
		buf.WriteString(value)
		buf.WriteString(`", `)
		return true
	})
	buf.WriteByte('}')
}
