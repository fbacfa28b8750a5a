package rag

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	chromem "github.com/philippgille/chromem-go"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/textsplitter"

	"github.com/smallnest/researchchat/log"
)

const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
	DefaultTopK         = 5
	DefaultThreshold    = 0.3
	DefaultMaxFileSize  = 50 << 20

	collectionName = "pdf_documents"
	manifestName   = "documents.json"
	vectorDirName  = "chromem"
)

// Chunk metadata keys.
const (
	MetaFilename   = "filename"
	MetaFileHash   = "file_hash"
	MetaChunkIndex = "chunk_index"
	MetaUploadDate = "upload_date"
	MetaChunkCount = "chunk_count"
)

var (
	ErrNoDocuments   = errors.New("no documents indexed")
	ErrNotFound      = errors.New("document not found")
	ErrEmptyDocument = errors.New("no text could be extracted")
	ErrTooLarge      = errors.New("file too large")
	ErrUnsupported   = errors.New("unsupported file type")
)

// Document is the manifest entry of one indexed file.
type Document struct {
	Filename   string    `json:"filename"`
	FileHash   string    `json:"file_hash"`
	UploadDate time.Time `json:"upload_date"`
	ChunkCount int       `json:"chunk_count"`
	Size       int       `json:"size"`
}

// Result is one matching chunk.
type Result struct {
	ID         string  `json:"id"`
	Content    string  `json:"content"`
	Filename   string  `json:"filename"`
	FileHash   string  `json:"file_hash"`
	ChunkIndex int     `json:"chunk_index"`
	Similarity float32 `json:"similarity"`
}

// Stats summarizes an index.
type Stats struct {
	TotalDocuments      int        `json:"total_documents"`
	TotalChunks         int        `json:"total_chunks"`
	AverageChunksPerDoc float64    `json:"average_chunks_per_doc"`
	Documents           []Document `json:"documents"`
}

type manifest struct {
	Documents []Document `json:"documents"`
}

// Index is the document index of one session. It is safe for concurrent use.
type Index struct {
	mu         sync.RWMutex
	dir        string
	db         *chromem.DB
	collection *chromem.Collection
	embedder   embeddings.Embedder
	splitter   textsplitter.TextSplitter
	docs       []Document

	chunkSize   int
	overlap     int
	topK        int
	threshold   float32
	maxFileSize int64
	logger      log.Logger
	now         func() time.Time
}

// Option configures an Index.
type Option func(*Index)

// WithChunking sets chunk size and overlap, both in characters.
func WithChunking(size, overlap int) Option {
	return func(x *Index) {
		x.chunkSize = size
		x.overlap = overlap
	}
}

// WithTopK sets the default number of chunks a search returns.
func WithTopK(k int) Option { return func(x *Index) { x.topK = k } }

// WithThreshold drops search results below the given similarity. Zero keeps
// everything.
func WithThreshold(t float32) Option { return func(x *Index) { x.threshold = t } }

// WithMaxFileSize limits uploads accepted by AddDocument.
func WithMaxFileSize(n int64) Option { return func(x *Index) { x.maxFileSize = n } }

// WithLogger sets the logger.
func WithLogger(l log.Logger) Option { return func(x *Index) { x.logger = l } }

// Open opens or creates the index stored under dir. An empty dir gives an
// in-memory index that is lost on exit.
func Open(dir string, embedder embeddings.Embedder, opts ...Option) (*Index, error) {
	if embedder == nil {
		return nil, errors.New("rag: embedder is required")
	}
	x := &Index{
		dir:         dir,
		embedder:    embedder,
		chunkSize:   DefaultChunkSize,
		overlap:     DefaultChunkOverlap,
		topK:        DefaultTopK,
		threshold:   DefaultThreshold,
		maxFileSize: DefaultMaxFileSize,
		logger:      log.GetDefaultLogger(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(x)
	}
	if x.overlap >= x.chunkSize {
		return nil, fmt.Errorf("rag: chunk overlap %d must be smaller than chunk size %d", x.overlap, x.chunkSize)
	}
	x.splitter = textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(x.chunkSize),
		textsplitter.WithChunkOverlap(x.overlap),
	)

	if dir == "" {
		x.db = chromem.NewDB()
	} else {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create index dir: %w", err)
		}
		db, err := chromem.NewPersistentDB(filepath.Join(dir, vectorDirName), false)
		if err != nil {
			return nil, fmt.Errorf("open vector db: %w", err)
		}
		x.db = db
		if err := x.loadManifest(); err != nil {
			return nil, err
		}
	}

	collection, err := x.db.GetOrCreateCollection(collectionName, nil, x.embedQuery)
	if err != nil {
		return nil, fmt.Errorf("open collection: %w", err)
	}
	x.collection = collection
	return x, nil
}

func (x *Index) embedQuery(ctx context.Context, text string) ([]float32, error) {
	return x.embedder.EmbedQuery(ctx, text)
}

// Dir returns the directory the index persists to.
func (x *Index) Dir() string { return x.dir }

// AddDocument extracts the text of an uploaded file and indexes it. added is
// false when a document with the same content was indexed before; the
// existing entry is returned in that case.
func (x *Index) AddDocument(ctx context.Context, filename string, r io.ReaderAt, size int64) (doc Document, added bool, err error) {
	if x.maxFileSize > 0 && size > x.maxFileSize {
		return Document{}, false, fmt.Errorf("%w: %.1f MB (max %.1f MB)", ErrTooLarge, mb(size), mb(x.maxFileSize))
	}
	text, err := LoadText(ctx, filename, r, size)
	if err != nil {
		return Document{}, false, err
	}
	return x.AddText(ctx, filename, text)
}

// AddText indexes already extracted text under filename.
func (x *Index) AddText(ctx context.Context, filename, text string) (Document, bool, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Document{}, false, fmt.Errorf("%s: %w", filename, ErrEmptyDocument)
	}
	sum := md5.Sum([]byte(text))
	hash := hex.EncodeToString(sum[:])

	x.mu.Lock()
	defer x.mu.Unlock()

	if i := x.find(hash); i >= 0 {
		x.logger.Info("document already indexed: %s", filename)
		return x.docs[i], false, nil
	}

	chunks, err := x.split(text)
	if err != nil {
		return Document{}, false, err
	}
	if len(chunks) == 0 {
		return Document{}, false, fmt.Errorf("%s: %w", filename, ErrEmptyDocument)
	}

	vectors, err := x.embedder.EmbedDocuments(ctx, chunks)
	if err != nil {
		return Document{}, false, fmt.Errorf("embed chunks: %w", err)
	}
	if len(vectors) != len(chunks) {
		return Document{}, false, fmt.Errorf("embed chunks: got %d vectors for %d chunks", len(vectors), len(chunks))
	}

	doc := Document{
		Filename:   filename,
		FileHash:   hash,
		UploadDate: x.now().UTC(),
		ChunkCount: len(chunks),
		Size:       len(text),
	}
	records := make([]chromem.Document, len(chunks))
	for i, chunk := range chunks {
		records[i] = chromem.Document{
			ID:        chunkID(hash, i),
			Content:   chunk,
			Embedding: vectors[i],
			Metadata: map[string]string{
				MetaFilename:   filename,
				MetaFileHash:   hash,
				MetaChunkIndex: strconv.Itoa(i),
				MetaUploadDate: doc.UploadDate.Format(time.RFC3339),
				MetaChunkCount: strconv.Itoa(len(chunks)),
			},
		}
	}
	if err := x.collection.AddDocuments(ctx, records, runtime.NumCPU()); err != nil {
		return Document{}, false, fmt.Errorf("store chunks: %w", err)
	}

	x.docs = append(x.docs, doc)
	if err := x.saveManifest(); err != nil {
		return Document{}, false, err
	}
	x.logger.Info("document indexed: %s (%d chunks)", filename, len(chunks))
	return doc, true, nil
}

func (x *Index) split(text string) ([]string, error) {
	parts, err := x.splitter.SplitText(text)
	if err != nil {
		return nil, fmt.Errorf("split text: %w", err)
	}
	chunks := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			chunks = append(chunks, p)
		}
	}
	return chunks, nil
}

// Search returns up to k chunks most similar to query, best first. k <= 0
// uses the configured default. Chunks below the similarity threshold are
// dropped, so the result may be empty.
func (x *Index) Search(ctx context.Context, query string, k int) ([]Result, error) {
	if k <= 0 {
		k = x.topK
	}
	x.mu.RLock()
	defer x.mu.RUnlock()

	count := x.collection.Count()
	if count == 0 {
		return nil, ErrNoDocuments
	}
	k = min(k, count)

	matches, err := x.collection.Query(ctx, query, k, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("query index: %w", err)
	}
	results := make([]Result, 0, len(matches))
	for _, m := range matches {
		if m.Similarity < x.threshold {
			continue
		}
		idx, _ := strconv.Atoi(m.Metadata[MetaChunkIndex])
		results = append(results, Result{
			ID:         m.ID,
			Content:    m.Content,
			Filename:   m.Metadata[MetaFilename],
			FileHash:   m.Metadata[MetaFileHash],
			ChunkIndex: idx,
			Similarity: m.Similarity,
		})
	}
	x.logger.Debug("search %q: %d of %d results above %.2f", query, len(results), len(matches), x.threshold)
	return results, nil
}

// ListDocuments returns the indexed documents in upload order.
func (x *Index) ListDocuments() []Document {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return slices.Clone(x.docs)
}

// DocumentCount returns the number of indexed documents.
func (x *Index) DocumentCount() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.docs)
}

// Filenames returns the names of the indexed documents.
func (x *Index) Filenames() []string {
	x.mu.RLock()
	defer x.mu.RUnlock()
	names := make([]string, len(x.docs))
	for i, d := range x.docs {
		names[i] = d.Filename
	}
	return names
}

// DeleteDocument removes a document and all of its chunks.
func (x *Index) DeleteDocument(ctx context.Context, hash string) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	i := x.find(hash)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, hash)
	}
	if err := x.collection.Delete(ctx, map[string]string{MetaFileHash: hash}, nil); err != nil {
		return fmt.Errorf("delete chunks: %w", err)
	}
	name := x.docs[i].Filename
	x.docs = slices.Delete(x.docs, i, i+1)
	if err := x.saveManifest(); err != nil {
		return err
	}
	x.logger.Info("document deleted: %s", name)
	return nil
}

// FullText rebuilds document text from stored chunks, documents separated by
// a blank line. With no hashes every document is included in upload order.
// Overlapping chunk borders appear twice.
func (x *Index) FullText(ctx context.Context, hashes ...string) (string, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()

	if len(x.docs) == 0 {
		return "", ErrNoDocuments
	}
	docs := x.docs
	if len(hashes) > 0 {
		docs = make([]Document, 0, len(hashes))
		for _, h := range hashes {
			i := x.find(h)
			if i < 0 {
				return "", fmt.Errorf("%w: %s", ErrNotFound, h)
			}
			docs = append(docs, x.docs[i])
		}
	}

	var parts []string
	for _, d := range docs {
		for i := range d.ChunkCount {
			c, err := x.collection.GetByID(ctx, chunkID(d.FileHash, i))
			if err != nil {
				return "", fmt.Errorf("read chunk %d of %s: %w", i, d.Filename, err)
			}
			parts = append(parts, c.Content)
		}
	}
	return strings.Join(parts, "\n\n"), nil
}

// Stats returns document and chunk counts.
func (x *Index) Stats() Stats {
	x.mu.RLock()
	defer x.mu.RUnlock()

	s := Stats{
		TotalDocuments: len(x.docs),
		TotalChunks:    x.collection.Count(),
		Documents:      slices.Clone(x.docs),
	}
	if s.TotalDocuments > 0 {
		s.AverageChunksPerDoc = float64(s.TotalChunks) / float64(s.TotalDocuments)
	}
	return s
}

// Close flushes the manifest. Chunks are persisted as they are added.
func (x *Index) Close() error {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.saveManifest()
}

func (x *Index) find(hash string) int {
	return slices.IndexFunc(x.docs, func(d Document) bool { return d.FileHash == hash })
}

func (x *Index) loadManifest() error {
	data, err := os.ReadFile(filepath.Join(x.dir, manifestName))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read manifest: %w", err)
	}
	var m manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return fmt.Errorf("decode manifest: %w", err)
	}
	x.docs = m.Documents
	return nil
}

func (x *Index) saveManifest() error {
	if x.dir == "" {
		return nil
	}
	data, err := json.MarshalIndent(manifest{Documents: x.docs}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	path := filepath.Join(x.dir, manifestName)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	return nil
}

func chunkID(hash string, i int) string {
	return hash + "_" + strconv.Itoa(i)
}

func mb(n int64) float64 { return float64(n) / (1 << 20) }
