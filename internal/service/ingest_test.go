package service

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"filedrop/internal/lifespan"
	"filedrop/internal/model"
	"filedrop/internal/repository"
	repomocks "filedrop/internal/repository/mocks"
	"filedrop/internal/sniff"
	storemocks "filedrop/internal/storage/mocks"
	"filedrop/internal/token"
)

var testOpts = IngestOptions{
	MaxContentLength: 256 * 1024 * 1024,
	MaxExtLength:     9,
	SecretBytes:      16,
	MimeDenylist: []string{
		"application/x-dosexec",
		"application/java-archive",
		"application/java-vm",
	},
}

func newTestIngest(repo *repomocks.MockEntryRepository, store *storemocks.MockDigestStore) IngestService {
	policy := lifespan.NewPolicy(30, 365, testOpts.MaxContentLength)
	return NewIngestService(repo, store, sniff.Detect, token.NewIssuer(), policy, testOpts, nil, nil)
}

func digestOf(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func TestIngest_NewUpload(t *testing.T) {
	repo := new(repomocks.MockEntryRepository)
	store := new(storemocks.MockDigestStore)
	svc := newTestIngest(repo, store)
	ctx := context.Background()

	data := []byte("hello, world\n")
	digest := digestOf(data)

	repo.On("FindByDigest", ctx, digest).Return(nil, sql.ErrNoRows)
	store.On("Put", digest, data).Return(nil)

	var created *model.Entry
	repo.On("Create", ctx, mock.MatchedBy(func(e *model.Entry) bool {
		created = e
		return e.Digest == digest
	})).Return(int64(1), nil)

	res, err := svc.Ingest(ctx, IngestRequest{
		Data:      data,
		Filename:  "hello.txt",
		Addr:      "203.0.113.7",
		UserAgent: "curl/8.0",
	})

	require.NoError(t, err)
	assert.True(t, res.IsNew)
	assert.Equal(t, int64(1), res.Entry.ID)
	assert.Equal(t, ".txt", created.Ext)
	assert.Equal(t, "text/plain; charset=utf-8", created.Mime)
	assert.Equal(t, int64(len(data)), created.Size)
	require.NotNil(t, created.MgmtToken)
	assert.Len(t, *created.MgmtToken, 43)
	assert.Nil(t, created.Secret)
	require.NotNil(t, created.ExpiresAt)
	repo.AssertExpectations(t)
	store.AssertExpectations(t)
}

func TestIngest_SecretRequested(t *testing.T) {
	repo := new(repomocks.MockEntryRepository)
	store := new(storemocks.MockDigestStore)
	svc := newTestIngest(repo, store)
	ctx := context.Background()

	data := []byte("secret stuff")
	repo.On("FindByDigest", ctx, mock.Anything).Return(nil, sql.ErrNoRows)
	store.On("Put", mock.Anything, data).Return(nil)

	var created *model.Entry
	repo.On("Create", ctx, mock.MatchedBy(func(e *model.Entry) bool {
		created = e
		return true
	})).Return(int64(2), nil)

	res, err := svc.Ingest(ctx, IngestRequest{Data: data, Filename: "s.txt", WantSecret: true})

	require.NoError(t, err)
	assert.True(t, res.IsNew)
	require.NotNil(t, created.Secret)
	assert.Len(t, *created.Secret, 22)
}

func TestIngest_ExtensionDerivation(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		data     []byte
		wantExt  string
	}{
		{"plain suffix", "hello.txt", []byte("hi there"), ".txt"},
		{"double suffix", "backup.tar.gz", []byte("hi there"), ".tar.gz"},
		{"long suffix truncated", "bye.truncatethis", []byte("hi there"), ".truncate"},
		{"long double falls back to last", "x.abcdef.gh", []byte("hi there"), ".gh"},
		{"no suffix uses sniffed type", "README", []byte("some plain words"), ".txt"},
		{"hidden file has no suffix", ".bashrc", []byte("export PATH=/bin"), ".txt"},
		{"binary defaults to bin", "blob", []byte{0x01, 0x02, 0x03, 0xff, 0xfe}, ".bin"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := new(repomocks.MockEntryRepository)
			store := new(storemocks.MockDigestStore)
			svc := newTestIngest(repo, store)
			ctx := context.Background()

			repo.On("FindByDigest", ctx, mock.Anything).Return(nil, sql.ErrNoRows)
			store.On("Put", mock.Anything, mock.Anything).Return(nil)

			var created *model.Entry
			repo.On("Create", ctx, mock.MatchedBy(func(e *model.Entry) bool {
				created = e
				return true
			})).Return(int64(1), nil)

			_, err := svc.Ingest(ctx, IngestRequest{Data: tt.data, Filename: tt.filename})

			require.NoError(t, err)
			assert.Equal(t, tt.wantExt, created.Ext)
		})
	}
}

func TestIngest_MimeReconciliation(t *testing.T) {
	tests := []struct {
		name     string
		declared string
		data     []byte
		wantMime string
		wantErr  error
	}{
		{"declared wins", "application/json", []byte(`{"a":1}`), "application/json", nil},
		{"empty falls back to sniffed", "", []byte("plain words here"), "text/plain; charset=utf-8", nil},
		{"no slash falls back to sniffed", "garbage", []byte("plain words here"), "text/plain; charset=utf-8", nil},
		{"octet-stream falls back to sniffed", "application/octet-stream", []byte("plain words here"), "text/plain; charset=utf-8", nil},
		{"denied declared type", "application/x-dosexec", []byte("plain words here"), "", ErrUnsupportedMedia},
		{"denied with parameters", "application/java-archive; charset=binary", []byte("plain words here"), "", ErrUnsupportedMedia},
		{"overlong declared type", "application/" + strings.Repeat("x", 200), []byte("plain words here"), "", ErrBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := new(repomocks.MockEntryRepository)
			store := new(storemocks.MockDigestStore)
			svc := newTestIngest(repo, store)
			ctx := context.Background()

			repo.On("FindByDigest", ctx, mock.Anything).Return(nil, sql.ErrNoRows)

			var created *model.Entry
			if tt.wantErr == nil {
				store.On("Put", mock.Anything, mock.Anything).Return(nil)
				repo.On("Create", ctx, mock.MatchedBy(func(e *model.Entry) bool {
					created = e
					return true
				})).Return(int64(1), nil)
			}

			_, err := svc.Ingest(ctx, IngestRequest{Data: tt.data, Filename: "f", DeclaredMime: tt.declared})

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				store.AssertNotCalled(t, "Put", mock.Anything, mock.Anything)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantMime, created.Mime)
		})
	}
}

func TestIngest_DeniedSniffedType(t *testing.T) {
	repo := new(repomocks.MockEntryRepository)
	store := new(storemocks.MockDigestStore)
	ctx := context.Background()

	// Force the sniffer to report an executable regardless of bytes.
	sniffer := func(data []byte) string { return "application/x-dosexec" }
	policy := lifespan.NewPolicy(30, 365, testOpts.MaxContentLength)
	svc := NewIngestService(repo, store, sniffer, token.NewIssuer(), policy, testOpts, nil, nil)

	repo.On("FindByDigest", ctx, mock.Anything).Return(nil, sql.ErrNoRows)

	_, err := svc.Ingest(ctx, IngestRequest{Data: []byte("MZ..."), Filename: "setup.exe", DeclaredMime: "image/png"})
	assert.ErrorIs(t, err, ErrUnsupportedMedia)
}

func TestIngest_SizeAndInputGates(t *testing.T) {
	repo := new(repomocks.MockEntryRepository)
	store := new(storemocks.MockDigestStore)
	ctx := context.Background()

	small := testOpts
	small.MaxContentLength = 8
	policy := lifespan.NewPolicy(30, 365, small.MaxContentLength)
	svc := NewIngestService(repo, store, sniff.Detect, token.NewIssuer(), policy, small, nil, nil)

	t.Run("oversize", func(t *testing.T) {
		_, err := svc.Ingest(ctx, IngestRequest{Data: []byte("way too many bytes")})
		assert.ErrorIs(t, err, ErrPayloadTooLarge)
	})

	t.Run("empty", func(t *testing.T) {
		_, err := svc.Ingest(ctx, IngestRequest{Data: nil})
		assert.ErrorIs(t, err, ErrBadRequest)
	})
}

func TestIngest_BlockedAddress(t *testing.T) {
	repo := new(repomocks.MockEntryRepository)
	store := new(storemocks.MockDigestStore)
	ctx := context.Background()

	bl := &Blocklist{addrs: map[string]struct{}{"203.0.113.9": {}}}
	policy := lifespan.NewPolicy(30, 365, testOpts.MaxContentLength)
	svc := NewIngestService(repo, store, sniff.Detect, token.NewIssuer(), policy, testOpts, nil, bl)

	_, err := svc.Ingest(ctx, IngestRequest{Data: []byte("hi"), Addr: "::ffff:203.0.113.9"})
	assert.ErrorIs(t, err, ErrBlocked)
}

func TestIngest_DuplicateLiveExtends(t *testing.T) {
	repo := new(repomocks.MockEntryRepository)
	store := new(storemocks.MockDigestStore)
	svc := newTestIngest(repo, store)
	ctx := context.Background()

	fixed := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	orig := timeNow
	timeNow = func() time.Time { return fixed }
	defer func() { timeNow = orig }()

	data := []byte("dup content")
	digest := digestOf(data)
	tok := "existing-token"
	nearExp := fixed.Add(24 * time.Hour).UnixMilli()
	existing := &model.Entry{
		ID: 9, Digest: digest, Ext: ".txt", Mime: "text/plain; charset=utf-8",
		Addr: "198.51.100.1", ExpiresAt: &nearExp, MgmtToken: &tok, Size: int64(len(data)),
	}

	repo.On("FindByDigest", ctx, digest).Return(existing, nil)
	repo.On("Save", ctx, existing).Return(nil)

	res, err := svc.Ingest(ctx, IngestRequest{Data: data, Filename: "dup.txt", Addr: "203.0.113.7", UserAgent: "curl"})

	require.NoError(t, err)
	assert.False(t, res.IsNew)
	assert.Same(t, existing, res.Entry)
	assert.Greater(t, *existing.ExpiresAt, nearExp)
	assert.Equal(t, "203.0.113.7", existing.Addr)
	store.AssertNotCalled(t, "Put", mock.Anything, mock.Anything)
}

func TestIngest_DuplicateNeverShortens(t *testing.T) {
	repo := new(repomocks.MockEntryRepository)
	store := new(storemocks.MockDigestStore)
	svc := newTestIngest(repo, store)
	ctx := context.Background()

	data := []byte("dup content")
	digest := digestOf(data)
	tok := "existing-token"
	farExp := time.Now().Add(10 * 365 * 24 * time.Hour).UnixMilli()
	existing := &model.Entry{ID: 9, Digest: digest, Ext: ".txt", ExpiresAt: &farExp, MgmtToken: &tok, Size: int64(len(data))}

	repo.On("FindByDigest", ctx, digest).Return(existing, nil)
	repo.On("Save", ctx, existing).Return(nil)

	short := int64(1) // one hour
	res, err := svc.Ingest(ctx, IngestRequest{Data: data, RequestedExpiration: &short})

	require.NoError(t, err)
	assert.False(t, res.IsNew)
	assert.Equal(t, farExp, *existing.ExpiresAt)
}

func TestIngest_RemovedStaysGone(t *testing.T) {
	repo := new(repomocks.MockEntryRepository)
	store := new(storemocks.MockDigestStore)
	svc := newTestIngest(repo, store)
	ctx := context.Background()

	data := []byte("banned bytes")
	repo.On("FindByDigest", ctx, digestOf(data)).Return(&model.Entry{ID: 3, Removed: true}, nil)

	_, err := svc.Ingest(ctx, IngestRequest{Data: data})
	assert.ErrorIs(t, err, ErrGone)
	store.AssertNotCalled(t, "Put", mock.Anything, mock.Anything)

	// The declared type must not change the answer: banned bytes stay
	// gone even when the upload re-declares them as a denied type.
	_, err = svc.Ingest(ctx, IngestRequest{Data: data, DeclaredMime: "application/x-dosexec"})
	assert.ErrorIs(t, err, ErrGone)
}

func TestIngest_DuplicateIgnoresDeclaredType(t *testing.T) {
	repo := new(repomocks.MockEntryRepository)
	store := new(storemocks.MockDigestStore)
	svc := newTestIngest(repo, store)
	ctx := context.Background()

	data := []byte("dup content")
	digest := digestOf(data)
	tok := "existing-token"
	exp := time.Now().Add(24 * time.Hour).UnixMilli()
	existing := &model.Entry{ID: 9, Digest: digest, Ext: ".txt", Mime: "text/plain; charset=utf-8", ExpiresAt: &exp, MgmtToken: &tok, Size: int64(len(data))}

	repo.On("FindByDigest", ctx, digest).Return(existing, nil)
	repo.On("Save", ctx, existing).Return(nil)

	for _, declared := range []string{
		"application/x-dosexec",
		"application/" + strings.Repeat("x", 200),
	} {
		res, err := svc.Ingest(ctx, IngestRequest{Data: data, DeclaredMime: declared})

		require.NoError(t, err)
		assert.False(t, res.IsNew)
		assert.Equal(t, "text/plain; charset=utf-8", existing.Mime)
	}
}

func TestIngest_ResurrectPrunedEntry(t *testing.T) {
	repo := new(repomocks.MockEntryRepository)
	store := new(storemocks.MockDigestStore)
	svc := newTestIngest(repo, store)
	ctx := context.Background()

	data := []byte("pruned bytes")
	digest := digestOf(data)
	oldSecret := "old-secret"
	pruned := &model.Entry{ID: 4, Digest: digest, Ext: ".bin", Mime: "application/octet-stream", Secret: &oldSecret, Size: int64(len(data))}

	repo.On("FindByDigest", ctx, digest).Return(pruned, nil)
	store.On("Put", digest, data).Return(nil)
	repo.On("Save", ctx, pruned).Return(nil)

	res, err := svc.Ingest(ctx, IngestRequest{Data: data, Filename: "back.txt"})

	require.NoError(t, err)
	assert.True(t, res.IsNew)
	require.NotNil(t, pruned.ExpiresAt)
	require.NotNil(t, pruned.MgmtToken)
	assert.Len(t, *pruned.MgmtToken, 43)
	assert.Nil(t, pruned.Secret)
	// The stored classification survives, whatever the new upload calls
	// the file.
	assert.Equal(t, ".bin", pruned.Ext)
	assert.Equal(t, "application/octet-stream", pruned.Mime)
}

func TestIngest_CreateRaceConvergesOnWinner(t *testing.T) {
	repo := new(repomocks.MockEntryRepository)
	store := new(storemocks.MockDigestStore)
	svc := newTestIngest(repo, store)
	ctx := context.Background()

	data := []byte("raced bytes")
	digest := digestOf(data)
	tok := "winner-token"
	exp := time.Now().Add(24 * time.Hour).UnixMilli()
	winner := &model.Entry{ID: 11, Digest: digest, Ext: ".txt", Mime: "text/plain; charset=utf-8", ExpiresAt: &exp, MgmtToken: &tok, Size: int64(len(data))}

	repo.On("FindByDigest", ctx, digest).Return(nil, sql.ErrNoRows).Once()
	store.On("Put", digest, data).Return(nil)
	repo.On("Create", ctx, mock.Anything).Return(int64(0), repository.ErrDuplicateDigest)
	repo.On("FindByDigest", ctx, digest).Return(winner, nil).Once()
	repo.On("Save", ctx, winner).Return(nil)

	res, err := svc.Ingest(ctx, IngestRequest{Data: data, Filename: "raced.txt"})

	require.NoError(t, err)
	assert.False(t, res.IsNew)
	assert.Same(t, winner, res.Entry)
	repo.AssertExpectations(t)
}

type stubDetector struct {
	score float64
	err   error
	calls int
}

func (d *stubDetector) Score(ctx context.Context, data []byte, mime string) (float64, error) {
	d.calls++
	return d.score, d.err
}

func TestIngest_NSFWScoring(t *testing.T) {
	// Smallest valid PNG header so the sniffer reports image/png.
	png := []byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a, 0, 0, 0, 0}

	t.Run("image gets scored once", func(t *testing.T) {
		repo := new(repomocks.MockEntryRepository)
		store := new(storemocks.MockDigestStore)
		det := &stubDetector{score: 0.91}
		policy := lifespan.NewPolicy(30, 365, testOpts.MaxContentLength)
		svc := NewIngestService(repo, store, sniff.Detect, token.NewIssuer(), policy, testOpts, det, nil)
		ctx := context.Background()

		repo.On("FindByDigest", ctx, mock.Anything).Return(nil, sql.ErrNoRows)
		store.On("Put", mock.Anything, mock.Anything).Return(nil)

		var created *model.Entry
		repo.On("Create", ctx, mock.MatchedBy(func(e *model.Entry) bool {
			created = e
			return true
		})).Return(int64(1), nil)

		_, err := svc.Ingest(ctx, IngestRequest{Data: png, Filename: "pic.png"})

		require.NoError(t, err)
		assert.Equal(t, 1, det.calls)
		require.NotNil(t, created.NSFWScore)
		assert.InDelta(t, 0.91, *created.NSFWScore, 1e-9)
	})

	t.Run("detector failure does not block the upload", func(t *testing.T) {
		repo := new(repomocks.MockEntryRepository)
		store := new(storemocks.MockDigestStore)
		det := &stubDetector{err: fmt.Errorf("sidecar down")}
		policy := lifespan.NewPolicy(30, 365, testOpts.MaxContentLength)
		svc := NewIngestService(repo, store, sniff.Detect, token.NewIssuer(), policy, testOpts, det, nil)
		ctx := context.Background()

		repo.On("FindByDigest", ctx, mock.Anything).Return(nil, sql.ErrNoRows)
		store.On("Put", mock.Anything, mock.Anything).Return(nil)

		var created *model.Entry
		repo.On("Create", ctx, mock.MatchedBy(func(e *model.Entry) bool {
			created = e
			return true
		})).Return(int64(1), nil)

		_, err := svc.Ingest(ctx, IngestRequest{Data: png, Filename: "pic.png"})

		require.NoError(t, err)
		assert.Nil(t, created.NSFWScore)
	})

	t.Run("non-image is never scored", func(t *testing.T) {
		repo := new(repomocks.MockEntryRepository)
		store := new(storemocks.MockDigestStore)
		det := &stubDetector{score: 0.99}
		policy := lifespan.NewPolicy(30, 365, testOpts.MaxContentLength)
		svc := NewIngestService(repo, store, sniff.Detect, token.NewIssuer(), policy, testOpts, det, nil)
		ctx := context.Background()

		repo.On("FindByDigest", ctx, mock.Anything).Return(nil, sql.ErrNoRows)
		store.On("Put", mock.Anything, mock.Anything).Return(nil)
		repo.On("Create", ctx, mock.Anything).Return(int64(1), nil)

		_, err := svc.Ingest(ctx, IngestRequest{Data: []byte("just words"), Filename: "a.txt"})

		require.NoError(t, err)
		assert.Zero(t, det.calls)
	})
}

func TestIngestRemote(t *testing.T) {
	ctx := context.Background()

	t.Run("success", func(t *testing.T) {
		body := []byte("remote file body")
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/plain")
			w.Header().Set("Content-Length", fmt.Sprint(len(body)))
			_, _ = w.Write(body)
		}))
		defer srv.Close()

		repo := new(repomocks.MockEntryRepository)
		store := new(storemocks.MockDigestStore)
		svc := newTestIngest(repo, store)

		repo.On("FindByDigest", ctx, digestOf(body)).Return(nil, sql.ErrNoRows)
		store.On("Put", digestOf(body), body).Return(nil)

		var created *model.Entry
		repo.On("Create", ctx, mock.MatchedBy(func(e *model.Entry) bool {
			created = e
			return true
		})).Return(int64(1), nil)

		res, err := svc.IngestRemote(ctx, srv.URL+"/files/notes.txt", IngestRequest{Addr: "203.0.113.7"})

		require.NoError(t, err)
		assert.True(t, res.IsNew)
		assert.Equal(t, ".txt", created.Ext)
		assert.Equal(t, "text/plain; charset=utf-8", created.Mime)
	})

	t.Run("missing content length", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Flushing first forces chunked transfer, so the client
			// sees no Content-Length.
			w.WriteHeader(http.StatusOK)
			w.(http.Flusher).Flush()
			_, _ = w.Write([]byte("streamed"))
		}))
		defer srv.Close()

		svc := newTestIngest(new(repomocks.MockEntryRepository), new(storemocks.MockDigestStore))
		_, err := svc.IngestRemote(ctx, srv.URL, IngestRequest{})
		assert.ErrorIs(t, err, ErrLengthRequired)
	})

	t.Run("advertised size over cap", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Length", "999999999999")
			w.WriteHeader(http.StatusOK)
		}))
		defer srv.Close()

		svc := newTestIngest(new(repomocks.MockEntryRepository), new(storemocks.MockDigestStore))
		_, err := svc.IngestRemote(ctx, srv.URL, IngestRequest{})
		assert.ErrorIs(t, err, ErrPayloadTooLarge)
	})

	t.Run("upstream error status", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "<html>not here</html>", http.StatusNotFound)
		}))
		defer srv.Close()

		store := new(storemocks.MockDigestStore)
		svc := newTestIngest(new(repomocks.MockEntryRepository), store)
		_, err := svc.IngestRemote(ctx, srv.URL+"/gone.txt", IngestRequest{})
		assert.ErrorIs(t, err, ErrBadRequest)
		store.AssertNotCalled(t, "Put", mock.Anything, mock.Anything)
	})

	t.Run("invalid url", func(t *testing.T) {
		svc := newTestIngest(new(repomocks.MockEntryRepository), new(storemocks.MockDigestStore))
		_, err := svc.IngestRemote(ctx, "ftp://example.com/f", IngestRequest{})
		assert.ErrorIs(t, err, ErrBadRequest)
	})
}
