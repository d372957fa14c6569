package service

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	stdmime "mime"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"filedrop/internal/config"
	"filedrop/internal/lifespan"
	"filedrop/internal/model"
	"filedrop/internal/nsfw"
	"filedrop/internal/repository"
	"filedrop/internal/sniff"
	"filedrop/internal/storage"
	"filedrop/internal/token"
)

// Test seam, mirrors the database package's sqlOpen variable.
var timeNow = time.Now

const maxMimeLength = 128

// IngestRequest carries one upload: the bytes plus everything the
// client declared about them.
type IngestRequest struct {
	Data                []byte
	Filename            string
	DeclaredMime        string
	Addr                string
	UserAgent           string
	RequestedExpiration *int64
	WantSecret          bool
}

// UploadResult pairs the stored entry with whether this request created
// (or resurrected) it. The management token is only revealed when IsNew
// is true.
type UploadResult struct {
	Entry *model.Entry
	IsNew bool
}

// IngestOptions are the upload limits and screening knobs.
type IngestOptions struct {
	MaxContentLength int64
	MaxExtLength     int
	SecretBytes      int
	MimeDenylist     []string
}

// IngestService accepts uploads, either as raw bytes or fetched from a
// remote URL, and lands them in content-addressed storage.
type IngestService interface {
	Ingest(ctx context.Context, req IngestRequest) (*UploadResult, error)
	IngestRemote(ctx context.Context, rawURL string, req IngestRequest) (*UploadResult, error)
}

type ingestService struct {
	repo      repository.EntryRepository
	store     storage.DigestStore
	sniffer   sniff.Sniffer
	tokens    *token.Issuer
	policy    lifespan.Policy
	detector  nsfw.Detector
	blocklist *Blocklist
	client    *http.Client
	opts      IngestOptions
	denied    map[string]struct{}
}

// NewIngestService constructs the upload orchestrator. detector may be
// nil to disable NSFW scoring; blocklist may be nil to allow all
// addresses.
func NewIngestService(
	repo repository.EntryRepository,
	store storage.DigestStore,
	sniffer sniff.Sniffer,
	tokens *token.Issuer,
	policy lifespan.Policy,
	opts IngestOptions,
	detector nsfw.Detector,
	blocklist *Blocklist,
) IngestService {
	denied := make(map[string]struct{}, len(opts.MimeDenylist))
	for _, m := range opts.MimeDenylist {
		denied[m] = struct{}{}
	}
	return &ingestService{
		repo:      repo,
		store:     store,
		sniffer:   sniffer,
		tokens:    tokens,
		policy:    policy,
		detector:  detector,
		blocklist: blocklist,
		client:    &http.Client{Timeout: 60 * time.Second},
		opts:      opts,
		denied:    denied,
	}
}

func (s *ingestService) Ingest(ctx context.Context, req IngestRequest) (*UploadResult, error) {
	if s.blocklist != nil && s.blocklist.Contains(req.Addr) {
		return nil, ErrBlocked
	}
	if len(req.Data) == 0 {
		return nil, ErrBadRequest
	}
	if int64(len(req.Data)) > s.opts.MaxContentLength {
		return nil, ErrPayloadTooLarge
	}

	sum := sha256.Sum256(req.Data)
	digest := hex.EncodeToString(sum[:])
	now := timeNow()

	existing, err := s.repo.FindByDigest(ctx, digest)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("lookup digest: %w", err)
	}

	if existing != nil {
		return s.reuse(ctx, existing, req, digest, now)
	}

	// Classification only matters for new content: a known digest keeps
	// its stored type and stays banned even when re-declared differently.
	mime, err := s.reconcileMime(req.Data, req.DeclaredMime)
	if err != nil {
		return nil, err
	}
	ext := s.deriveExt(mime, req.Filename)

	return s.create(ctx, req, mime, ext, digest, now)
}

// reuse dispatches an upload whose digest already has a record.
func (s *ingestService) reuse(ctx context.Context, e *model.Entry, req IngestRequest, digest string, now time.Time) (*UploadResult, error) {
	if e.Removed {
		return nil, ErrGone
	}
	if e.IsLive() {
		return s.extend(ctx, e, req, now)
	}
	return s.resurrect(ctx, e, req, digest, now)
}

// extend refreshes a live duplicate: expiration only ever moves later,
// and provenance follows the most recent uploader.
func (s *ingestService) extend(ctx context.Context, e *model.Entry, req IngestRequest, now time.Time) (*UploadResult, error) {
	exp := s.policy.EffectiveExpiration(req.RequestedExpiration, e.Size, now)
	if *e.ExpiresAt < exp {
		e.ExpiresAt = &exp
	}
	e.Addr = req.Addr
	e.UserAgent = req.UserAgent
	if err := s.repo.Save(ctx, e); err != nil {
		return nil, fmt.Errorf("extend entry: %w", err)
	}
	return &UploadResult{Entry: e, IsNew: false}, nil
}

// resurrect revives a pruned record whose bytes re-arrived. The caller
// gets a fresh management token; any old secret is discarded. The
// stored type, NSFW score and scan verdict all carry over since the
// bytes are identical.
func (s *ingestService) resurrect(ctx context.Context, e *model.Entry, req IngestRequest, digest string, now time.Time) (*UploadResult, error) {
	if err := s.store.Put(digest, req.Data); err != nil {
		return nil, fmt.Errorf("store bytes: %w", err)
	}

	tok, err := s.tokens.NewManagementToken()
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}
	exp := s.policy.EffectiveExpiration(req.RequestedExpiration, int64(len(req.Data)), now)

	e.Addr = req.Addr
	e.UserAgent = req.UserAgent
	e.ExpiresAt = &exp
	e.MgmtToken = &tok
	e.Secret = nil
	if req.WantSecret {
		sec, err := s.tokens.NewAccessSecret(s.opts.SecretBytes)
		if err != nil {
			return nil, fmt.Errorf("issue secret: %w", err)
		}
		e.Secret = &sec
	}
	e.Size = int64(len(req.Data))

	if err := s.repo.Save(ctx, e); err != nil {
		return nil, fmt.Errorf("resurrect entry: %w", err)
	}
	return &UploadResult{Entry: e, IsNew: true}, nil
}

func (s *ingestService) create(ctx context.Context, req IngestRequest, mime, ext, digest string, now time.Time) (*UploadResult, error) {
	if err := s.store.Put(digest, req.Data); err != nil {
		return nil, fmt.Errorf("store bytes: %w", err)
	}

	tok, err := s.tokens.NewManagementToken()
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}
	exp := s.policy.EffectiveExpiration(req.RequestedExpiration, int64(len(req.Data)), now)

	e := &model.Entry{
		Digest:    digest,
		Ext:       ext,
		Mime:      mime,
		Addr:      req.Addr,
		UserAgent: req.UserAgent,
		ExpiresAt: &exp,
		MgmtToken: &tok,
		Size:      int64(len(req.Data)),
	}
	if req.WantSecret {
		sec, err := s.tokens.NewAccessSecret(s.opts.SecretBytes)
		if err != nil {
			return nil, fmt.Errorf("issue secret: %w", err)
		}
		e.Secret = &sec
	}
	if s.detector != nil && strings.HasPrefix(mime, "image/") {
		if score, err := s.detector.Score(ctx, req.Data, mime); err == nil {
			e.NSFWScore = &score
		}
	}

	id, err := s.repo.Create(ctx, e)
	if err != nil {
		if errors.Is(err, repository.ErrDuplicateDigest) {
			// Another in-flight upload of the same bytes won the
			// unique-index race; converge on its entry. The bytes are
			// already in place under the shared digest.
			winner, lookErr := s.repo.FindByDigest(ctx, digest)
			if lookErr != nil {
				return nil, fmt.Errorf("reload entry after duplicate insert: %w", lookErr)
			}
			return s.reuse(ctx, winner, req, digest, now)
		}
		return nil, fmt.Errorf("create entry: %w", err)
	}
	e.ID = id
	return &UploadResult{Entry: e, IsNew: true}, nil
}

func (s *ingestService) IngestRemote(ctx context.Context, rawURL string, req IngestRequest) (*UploadResult, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, ErrBadRequest
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, ErrBadRequest
	}
	// Identity keeps Content-Length meaningful for the size gate.
	httpReq.Header.Set("Accept-Encoding", "identity")

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("fetch remote: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, ErrBadRequest
	}
	if resp.ContentLength < 0 {
		return nil, ErrLengthRequired
	}
	if resp.ContentLength > s.opts.MaxContentLength {
		return nil, ErrPayloadTooLarge
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, s.opts.MaxContentLength+1))
	if err != nil {
		return nil, fmt.Errorf("read remote body: %w", err)
	}
	if int64(len(data)) > s.opts.MaxContentLength {
		return nil, ErrPayloadTooLarge
	}

	req.Data = data
	req.DeclaredMime = resp.Header.Get("Content-Type")
	if name := path.Base(u.Path); name != "/" && name != "." {
		req.Filename = name
	}
	return s.Ingest(ctx, req)
}

// reconcileMime picks the stored media type from the declared and
// sniffed candidates. The declared type wins unless it is absent,
// malformed, or the generic octet-stream. Both candidates are screened
// against the denylist.
func (s *ingestService) reconcileMime(data []byte, declared string) (string, error) {
	sniffed := s.sniffer(data)
	if s.isDenied(sniffed) {
		return "", ErrUnsupportedMedia
	}

	m := strings.TrimSpace(declared)
	if m == "" || !strings.Contains(m, "/") || baseType(m) == "application/octet-stream" {
		m = sniffed
	}
	if len(m) > maxMimeLength {
		return "", ErrBadRequest
	}
	if s.isDenied(baseType(m)) {
		return "", ErrUnsupportedMedia
	}
	if strings.HasPrefix(m, "text/") && !strings.Contains(m, "charset") {
		m += "; charset=utf-8"
	}
	return m, nil
}

func (s *ingestService) isDenied(mime string) bool {
	_, ok := s.denied[baseType(mime)]
	return ok
}

func baseType(mime string) string {
	if i := strings.IndexByte(mime, ';'); i >= 0 {
		mime = mime[:i]
	}
	return strings.TrimSpace(mime)
}

// deriveExt picks the stored filename extension: the last two suffixes
// of the upload name, falling back to the last one when too long, then
// to the media-type tables, then ".bin". The result is truncated to the
// configured cap.
func (s *ingestService) deriveExt(mime, filename string) string {
	sufs := suffixes(filename)
	ext := strings.Join(sufs, "")
	if len(ext) > s.opts.MaxExtLength && len(sufs) > 1 {
		ext = sufs[len(sufs)-1]
	}
	if ext == "" {
		base := baseType(mime)
		if o, ok := config.ExtOverride[base]; ok {
			ext = o
		} else if guesses, err := stdmime.ExtensionsByType(base); err == nil && len(guesses) > 0 {
			ext = guesses[0]
		} else {
			ext = ".bin"
		}
	}
	if len(ext) > s.opts.MaxExtLength {
		ext = ext[:s.opts.MaxExtLength]
	}
	return ext
}

// suffixes returns up to the last two dot-suffixes of a filename.
// A leading dot is a hidden-file marker, not a suffix.
func suffixes(filename string) []string {
	base := path.Base(strings.ReplaceAll(filename, "\\", "/"))
	base = strings.TrimLeft(base, ".")
	parts := strings.Split(base, ".")
	if len(parts) < 2 {
		return nil
	}
	parts = parts[1:]
	if len(parts) > 2 {
		parts = parts[len(parts)-2:]
	}
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		out = append(out, "."+p)
	}
	return out
}
