package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/zhouzirui/jarvik/webclient/internal/model/ask"
)

type askOptions struct {
	file      string
	private   bool
	topics    string
	save      bool
	web       bool
	out       string
	raw       bool
	showDebug bool
}

func newAskCmd(a *app) *cobra.Command {
	var opts askOptions
	cmd := &cobra.Command{
		Use:   "ask <question...>",
		Short: "Ask Jarvik a question, optionally with a file",
		RunE: func(cmd *cobra.Command, args []string) error {
			message := strings.TrimSpace(strings.Join(args, " "))
			if message == "" && opts.file == "" {
				return a.report(fmt.Errorf("a question or --file is required"))
			}
			if opts.web && opts.file != "" {
				return a.report(fmt.Errorf("--web cannot be combined with --file"))
			}

			req := ask.Request{
				Message: message,
				Private: opts.private,
				Topics:  ask.ParseTopics(opts.topics),
				Save:    opts.save,
				Web:     opts.web,
			}
			if opts.file != "" {
				f, err := os.Open(opts.file)
				if err != nil {
					return a.report(fmt.Errorf("open attachment: %w", err))
				}
				defer f.Close()
				req.File = &ask.Attachment{Name: filepath.Base(opts.file), Content: f}
			}

			result := a.router.Ask(cmd.Context(), req)
			return a.showResult(cmd.Context(), result, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.file, "file", "f", "", "file to attach")
	cmd.Flags().BoolVar(&opts.private, "private", false, "use only your private knowledge and memory")
	cmd.Flags().StringVar(&opts.topics, "topics", "", "comma separated knowledge topics")
	cmd.Flags().BoolVar(&opts.save, "save", false, "ask the server to save the answer as a file")
	cmd.Flags().BoolVarP(&opts.web, "web", "w", false, "search the web before answering")
	cmd.Flags().StringVarP(&opts.out, "out", "o", "", "where to write a returned file (default: its own name)")
	cmd.Flags().BoolVar(&opts.raw, "raw", false, "print the answer without markdown rendering")
	cmd.Flags().BoolVarP(&opts.showDebug, "debug", "d", false, "print the server's debug lines")
	return cmd
}

func (a *app) showResult(ctx context.Context, result ask.Result, opts askOptions) error {
	if opts.showDebug {
		defer a.out.debug(result.Debug)
	}

	switch result.Kind {
	case ask.KindFailure:
		a.out.fail("%s", result.Error)
		if result.ErrorKind == ask.ErrorAuth {
			a.out.warn("session cleared, run `jarvik login` again")
		}
		return fmt.Errorf("%s: %s", result.ErrorKind, result.Error)

	case ask.KindBinary:
		// 引用只在写出文件期间有效。
		defer a.router.RevokeBlob(result.BlobURL)

		if result.Answer != "" {
			a.out.answer(result.Answer, opts.raw)
		}
		b, err := a.router.Blob(result.BlobURL)
		if err != nil {
			return a.report(err)
		}
		path := targetPath(opts.out, b.Filename)
		if err := os.WriteFile(path, b.Data, 0o644); err != nil {
			return a.report(fmt.Errorf("write %s: %w", path, err))
		}
		a.out.ok("saved %s (%d bytes)", path, len(b.Data))
		return nil

	default:
		a.out.answer(result.Answer, opts.raw)
		if result.DownloadURL == "" {
			return nil
		}
		if !opts.save && opts.out == "" {
			a.out.info("download: %s", a.router.URL(result.DownloadURL))
			return nil
		}
		return a.download(ctx, result.DownloadURL, opts.out)
	}
}

func (a *app) download(ctx context.Context, downloadURL, out string) error {
	f, err := a.router.Download(ctx, downloadURL)
	if err != nil {
		return a.report(err)
	}
	path := targetPath(out, f.Name)
	if err := os.WriteFile(path, f.Data, 0o644); err != nil {
		return a.report(fmt.Errorf("write %s: %w", path, err))
	}
	a.out.ok("saved %s (%d bytes)", path, len(f.Data))
	return nil
}

// targetPath picks the output file: out itself, a file named name inside
// out when out is a directory, or name in the working directory.
func targetPath(out, name string) string {
	name = filepath.Base(name)
	if out == "" {
		return name
	}
	if info, err := os.Stat(out); err == nil && info.IsDir() {
		return filepath.Join(out, name)
	}
	return out
}

func newDownloadCmd(a *app) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "download <download_url>",
		Short: "Fetch a saved answer file",
		Args:  requireArgs(1, "download url"),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.download(cmd.Context(), args[0], out)
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file or directory")
	return cmd
}
