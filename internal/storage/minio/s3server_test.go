package miniostore

import (
	"encoding/xml"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"
)

// fakeBucket answers the ListObjectsV2 and multi-object delete calls minio-go makes against a
// single path-style bucket.
type fakeBucket struct {
	mu         sync.Mutex
	name       string
	objects    map[string]int64
	pageSize   int
	denyList   bool
	denyDelete map[string]bool
	deletes    int
}

func newFakeBucket(name string, keys ...string) *fakeBucket {
	b := &fakeBucket{name: name, objects: map[string]int64{}, pageSize: 1000, denyDelete: map[string]bool{}}
	for _, k := range keys {
		b.objects[k] = int64(len(k))
	}
	return b
}

// serve starts the responder and returns a Storage pointed at it. Configure b before calling.
func (b *fakeBucket) serve(t *testing.T) *Storage {
	t.Helper()
	srv := httptest.NewServer(b)
	t.Cleanup(srv.Close)

	s, err := New(Options{
		Name:      "minio",
		Endpoint:  srv.URL,
		Bucket:    b.name,
		Region:    "us-east-1",
		AccessKey: "test",
		SecretKey: "testsecret",
		PathStyle: true,
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	return s
}

func (b *fakeBucket) deleteCalls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.deletes
}

func (b *fakeBucket) keys() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0, len(b.objects))
	for k := range b.objects {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (b *fakeBucket) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if strings.Trim(r.URL.Path, "/") != b.name {
		writeS3Error(w, http.StatusNotFound, "NoSuchBucket", "The specified bucket does not exist")
		return
	}
	q := r.URL.Query()
	switch {
	case r.Method == http.MethodGet && q.Get("list-type") == "2":
		if b.denyList {
			writeS3Error(w, http.StatusForbidden, "AccessDenied", "Access Denied.")
			return
		}
		b.list(w, q.Get("prefix"), q.Get("delimiter"), q.Get("continuation-token"), q.Get("max-keys"))
	case r.Method == http.MethodPost && q.Has("delete"):
		b.deleteMany(w, r)
	default:
		writeS3Error(w, http.StatusBadRequest, "InvalidRequest", r.Method+" "+r.URL.RawQuery)
	}
}

type listEntry struct {
	key      string
	isPrefix bool
}

func (b *fakeBucket) list(w http.ResponseWriter, prefix, delimiter, token, maxKeys string) {
	limit := b.pageSize
	if n, err := strconv.Atoi(maxKeys); err == nil && n > 0 && n < limit {
		limit = n
	}

	keys := make([]string, 0, len(b.objects))
	for k := range b.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	var entries []listEntry
	seen := map[string]bool{}
	for _, k := range keys {
		rest := strings.TrimPrefix(k, prefix)
		if delimiter != "" {
			if i := strings.Index(rest, delimiter); i >= 0 {
				p := prefix + rest[:i+len(delimiter)]
				if !seen[p] {
					seen[p] = true
					entries = append(entries, listEntry{key: p, isPrefix: true})
				}
				continue
			}
		}
		entries = append(entries, listEntry{key: k})
	}

	res := listBucketResult{Name: b.name, Prefix: prefix, Delimiter: delimiter, MaxKeys: limit}
	for _, e := range entries {
		if token != "" && e.key <= token {
			continue
		}
		if res.KeyCount == limit {
			res.IsTruncated = true
			break
		}
		res.KeyCount++
		res.NextContinuationToken = e.key
		if e.isPrefix {
			res.CommonPrefixes = append(res.CommonPrefixes, commonPrefix{Prefix: e.key})
			continue
		}
		res.Contents = append(res.Contents, listObject{
			Key:          e.key,
			LastModified: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
			ETag:         `"0123456789abcdef"`,
			Size:         b.objects[e.key],
			StorageClass: "STANDARD",
		})
	}
	if !res.IsTruncated {
		res.NextContinuationToken = ""
	}
	writeXML(w, http.StatusOK, res)
}

func (b *fakeBucket) deleteMany(w http.ResponseWriter, r *http.Request) {
	var req struct {
		XMLName xml.Name `xml:"Delete"`
		Objects []struct {
			Key string
		} `xml:"Object"`
	}
	if err := xml.NewDecoder(r.Body).Decode(&req); err != nil {
		writeS3Error(w, http.StatusBadRequest, "MalformedXML", err.Error())
		return
	}
	b.deletes++

	var res deleteResult
	for _, o := range req.Objects {
		if b.denyDelete[o.Key] {
			res.Errors = append(res.Errors, deleteError{Key: o.Key, Code: "AccessDenied", Message: "Access Denied."})
			continue
		}
		delete(b.objects, o.Key)
		res.Deleted = append(res.Deleted, deletedKey{Key: o.Key})
	}
	writeXML(w, http.StatusOK, res)
}

type listBucketResult struct {
	XMLName               xml.Name `xml:"ListBucketResult"`
	Name                  string
	Prefix                string
	Delimiter             string `xml:",omitempty"`
	MaxKeys               int
	KeyCount              int
	IsTruncated           bool
	NextContinuationToken string `xml:",omitempty"`
	Contents              []listObject
	CommonPrefixes        []commonPrefix
}

type listObject struct {
	Key          string
	LastModified time.Time
	ETag         string
	Size         int64
	StorageClass string
}

type commonPrefix struct {
	Prefix string
}

type deleteResult struct {
	XMLName xml.Name      `xml:"DeleteResult"`
	Deleted []deletedKey  `xml:"Deleted"`
	Errors  []deleteError `xml:"Error"`
}

type deletedKey struct {
	Key string
}

type deleteError struct {
	Key     string
	Code    string
	Message string
}

type s3Error struct {
	XMLName xml.Name `xml:"Error"`
	Code    string
	Message string
}

func writeS3Error(w http.ResponseWriter, status int, code, msg string) {
	writeXML(w, status, s3Error{Code: code, Message: msg})
}

func writeXML(w http.ResponseWriter, status int, v any) {
	body, err := xml.Marshal(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(xml.Header))
	_, _ = w.Write(body)
}
