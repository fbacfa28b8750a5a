package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/smallnest/researchchat/rag"
	"github.com/smallnest/researchchat/store"
)

func ingestFile(ctx context.Context, docs *rag.Index, path string) (rag.Document, bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return rag.Document{}, false, err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return rag.Document{}, false, err
	}
	return docs.AddDocument(ctx, filepath.Base(path), f, info.Size())
}

func newIngestCommand(root *rootOptions) *cobra.Command {
	var sessionID string
	cmd := &cobra.Command{
		Use:   "ingest FILE...",
		Short: "Index documents into a session",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := root.load()
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			sess, err := a.registry.Get(ctx, sessionID)
			if err != nil {
				return err
			}
			docs, err := a.registry.Documents(sess.ID())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, path := range args {
				doc, added, err := ingestFile(ctx, docs, path)
				if err != nil {
					return fmt.Errorf("%s: %w", path, err)
				}
				if !added {
					fmt.Fprintf(out, "%s: zaten yüklenmiş\n", doc.Filename)
					continue
				}
				abs, _ := filepath.Abs(path)
				if err := a.store.SaveDocument(ctx, &store.Document{
					SessionID:  sess.ID(),
					Filename:   doc.Filename,
					FileHash:   doc.FileHash,
					Path:       abs,
					Size:       int64(doc.Size),
					ChunkCount: doc.ChunkCount,
				}); err != nil {
					logger.Warn("record %s: %v", doc.Filename, err)
				}
				fmt.Fprintf(out, "%s: %d metin parçası\n", doc.Filename, doc.ChunkCount)
			}
			fmt.Fprintf(out, "oturum: %s\n", sess.ID())
			return nil
		},
	}
	cmd.Flags().StringVarP(&sessionID, "session", "s", "", "target session, a new one when empty")
	return cmd
}
