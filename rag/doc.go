// Package rag keeps the per-session document index used for retrieval
// augmented answers and test generation.
//
// Uploaded PDF and text files are reduced to plain text, split into
// overlapping chunks, embedded and stored in a chromem-go collection that
// lives in the session's directory. A small JSON manifest next to the
// collection records one entry per document so listing, duplicate detection
// and deletion never need to scan the vectors.
//
// Chunk ids are "<hash>_<i>" where hash is the MD5 of the extracted text,
// and every chunk carries the metadata keys filename, file_hash,
// chunk_index, upload_date and chunk_count.
//
// A Manager hands out one Index per session and closes the least recently
// used ones when its cache is full.
package rag
