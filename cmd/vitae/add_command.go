package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"vitae/internal/api"
	"vitae/internal/fileutil"
	"vitae/internal/queue"
	"vitae/internal/textutil"
)

var documentExtensions = map[string]struct{}{
	".txt":      {},
	".md":       {},
	".markdown": {},
}

func newAddCommand(ctx *commandContext) *cobra.Command {
	var priority string
	var copyToInbox bool

	cmd := &cobra.Command{
		Use:   "add <path>...",
		Short: "Submit documents to the processing queue",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if priority != "" {
				if _, ok := queue.ParsePriority(priority); !ok {
					return fmt.Errorf("unknown priority %q", priority)
				}
			}

			client := ctx.apiClient()
			for _, arg := range args {
				absPath, err := filepath.Abs(arg)
				if err != nil {
					return fmt.Errorf("resolve path: %w", err)
				}
				info, err := os.Stat(absPath)
				if err != nil {
					if errors.Is(err, os.ErrNotExist) {
						return fmt.Errorf("file does not exist: %s", absPath)
					}
					return fmt.Errorf("inspect file: %w", err)
				}
				if info.IsDir() {
					return fmt.Errorf("%s is a directory", absPath)
				}
				ext := strings.ToLower(filepath.Ext(info.Name()))
				if _, ok := documentExtensions[ext]; !ok {
					return fmt.Errorf("unsupported file extension %q", ext)
				}

				submitPath := absPath
				if copyToInbox {
					submitPath, err = copyIntoInbox(ctx, absPath)
					if err != nil {
						return err
					}
				}

				resp, err := client.Enqueue(cmd.Context(), api.EnqueueRequest{
					SourcePath: submitPath,
					Priority:   priority,
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Queued %s as item %s\n", filepath.Base(absPath), resp.ID)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&priority, "priority", "p", "", "Queue priority (critical, high, normal, low, background)")
	cmd.Flags().BoolVar(&copyToInbox, "copy", false, "Copy the document into the inbox before enqueueing")
	return cmd
}

func copyIntoInbox(ctx *commandContext, source string) (string, error) {
	cfg := ctx.configValue()
	if cfg == nil || strings.TrimSpace(cfg.Paths.InboxDir) == "" {
		return "", errors.New("inbox directory is not configured")
	}
	if err := os.MkdirAll(cfg.Paths.InboxDir, 0o755); err != nil {
		return "", fmt.Errorf("create inbox directory: %w", err)
	}
	base := textutil.SanitizeFileName(filepath.Base(source))
	if base == "" {
		return "", fmt.Errorf("unusable file name %q", filepath.Base(source))
	}
	target := filepath.Join(cfg.Paths.InboxDir, base)
	if err := fileutil.CopyFileVerified(source, target); err != nil {
		return "", fmt.Errorf("copy into inbox: %w", err)
	}
	return target, nil
}
