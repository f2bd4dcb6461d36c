package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/zhouzirui/jarvik/webclient/internal/model/account"
	"github.com/zhouzirui/jarvik/webclient/internal/model/ask"
	"github.com/zhouzirui/jarvik/webclient/internal/model/catalog"
	"github.com/zhouzirui/jarvik/webclient/internal/model/knowledge"
)

func newFeedbackCmd(a *app) *cobra.Command {
	var question, answer, correction string
	cmd := &cobra.Command{
		Use:       "feedback <good|bad>",
		Short:     "Rate an answer",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{account.VoteGood, account.VoteBad},
		RunE: func(cmd *cobra.Command, args []string) error {
			vote := strings.ToLower(args[0])
			if vote != account.VoteGood && vote != account.VoteBad {
				return a.report(fmt.Errorf("vote must be %q or %q", account.VoteGood, account.VoteBad))
			}
			fb := account.NewFeedback(vote, question, answer, correction)
			if err := a.router.SendFeedback(cmd.Context(), fb); err != nil {
				return a.report(err)
			}
			a.out.ok("feedback sent")
			return nil
		},
	}
	cmd.Flags().StringVarP(&question, "question", "q", "", "the question that was asked")
	cmd.Flags().StringVarP(&answer, "answer", "a", "", "the answer being rated")
	cmd.Flags().StringVarP(&correction, "correction", "c", "", "the correct answer (bad votes only)")
	return cmd
}

func newModelCmd(a *app) *cobra.Command {
	models := catalog.Default()
	cmd := &cobra.Command{
		Use:   "model [name]",
		Short: "Show the running model, or switch to another one",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				state account.ModelState
				err   error
			)
			if len(args) == 1 {
				state, err = a.router.SwitchModel(cmd.Context(), args[0])
			} else {
				state, err = a.router.Model(cmd.Context())
			}
			if err != nil {
				return a.report(err)
			}

			if m, ok := models.Describe(state.Model); ok {
				a.out.ok("%s (%s)", m.Label, state.Model)
				a.out.info("%s", m.Description)
			} else {
				a.out.ok("%s", state.Model)
			}
			if state.Status != "" {
				a.out.info("status: %s", state.Status)
			}
			return nil
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List the known models",
		Args:  cobra.NoArgs,
		Run: func(*cobra.Command, []string) {
			for _, m := range models.List() {
				web := ""
				if m.Web {
					web = " [web]"
				}
				a.out.info("%-12s %s%s", m.ID, m.Label, web)
			}
		},
	})
	return cmd
}

func newKnowledgeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "knowledge",
		Aliases: []string{"kb"},
		Short:   "Manage the knowledge base",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "topics",
		Short: "List knowledge topics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			topics, err := a.router.Topics(cmd.Context())
			if err != nil {
				return a.report(err)
			}
			if len(topics) == 0 {
				a.out.info("no topics")
			}
			for _, t := range topics {
				a.out.info("%s", t)
			}
			return nil
		},
	})

	var (
		private     bool
		description string
		topic       string
	)
	upload := &cobra.Command{
		Use:   "upload <file>",
		Short: "Upload a document (public uploads wait for approval)",
		Args:  requireArgs(1, "file"),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return a.report(fmt.Errorf("open document: %w", err))
			}
			defer f.Close()

			resp, err := a.router.UploadKnowledge(cmd.Context(), knowledge.UploadRequest{
				Filename:    filepath.Base(args[0]),
				Content:     f,
				Private:     private,
				Description: description,
				Topic:       topic,
			})
			if err != nil {
				return a.report(err)
			}
			a.out.ok("uploaded %s (%s)", resp.File, resp.Status)
			return nil
		},
	}
	upload.Flags().BoolVar(&private, "private", false, "keep the document in your private folder")
	upload.Flags().StringVar(&description, "description", "", "short description")
	upload.Flags().StringVar(&topic, "topic", "", "proposed topic")
	cmd.AddCommand(upload)

	cmd.AddCommand(&cobra.Command{
		Use:   "pending",
		Short: "List uploads awaiting approval",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			items, err := a.router.Pending(cmd.Context())
			if err != nil {
				return a.report(err)
			}
			if len(items) == 0 {
				a.out.info("nothing pending")
			}
			for _, it := range items {
				topic := it.ProposedTopic
				if topic == "" {
					topic = it.Topic
				}
				a.out.info("%s\tby %s\ttopic %s", it.File, it.Uploader, topic)
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "approve <file>",
		Short: "Approve a pending upload",
		Args:  requireArgs(1, "file"),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.router.Approve(cmd.Context(), args[0]); err != nil {
				return a.report(err)
			}
			a.out.ok("approved %s", args[0])
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "reject <file>",
		Short: "Reject a pending upload",
		Args:  requireArgs(1, "file"),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.router.Reject(cmd.Context(), args[0]); err != nil {
				return a.report(err)
			}
			a.out.ok("rejected %s", args[0])
			return nil
		},
	})

	var (
		searchTopics string
		threshold    float64
	)
	search := &cobra.Command{
		Use:   "search <query...>",
		Short: "Search knowledge chunks",
		Args:  requireArgs(1, "query"),
		RunE: func(cmd *cobra.Command, args []string) error {
			chunks, err := a.router.SearchKnowledge(cmd.Context(), knowledge.SearchQuery{
				Query:     strings.Join(args, " "),
				Topics:    ask.ParseTopics(searchTopics),
				Threshold: threshold,
			})
			if err != nil {
				return a.report(err)
			}
			if len(chunks) == 0 {
				a.out.info("no matches")
			}
			for i, c := range chunks {
				a.out.info("%d. %s", i+1, c)
			}
			return nil
		},
	}
	search.Flags().StringVar(&searchTopics, "topics", "", "comma separated topics")
	search.Flags().Float64Var(&threshold, "threshold", 0, "similarity threshold between 0 and 1")
	cmd.AddCommand(search)

	cmd.AddCommand(&cobra.Command{
		Use:   "reload",
		Short: "Re-index the knowledge base",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			resp, err := a.router.ReloadKnowledge(cmd.Context())
			if err != nil {
				return a.report(err)
			}
			a.out.ok("%s, %d chunks", resp.Status, resp.Chunks)
			return nil
		},
	})
	return cmd
}

func newMemoryCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "memory",
		Short: "Inspect, add or delete conversation memory",
	}

	var entry account.MemoryAddRequest
	var attachments string
	add := &cobra.Command{
		Use:   "add <question> <answer>",
		Short: "Remember a question and its answer",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			entry.User, entry.Jarvik = args[0], args[1]
			entry.Attachments = ask.ParseTopics(attachments)
			if err := a.router.AddMemory(cmd.Context(), entry); err != nil {
				return a.report(err)
			}
			a.out.ok("remembered")
			return nil
		},
	}
	add.Flags().BoolVar(&entry.Private, "private", true, "store in your own memory instead of the shared one")
	add.Flags().StringVar(&entry.Context, "context", "", "free-form context for the entry")
	add.Flags().StringVar(&entry.Date, "date", "", "entry date (YYYY-MM-DD, default today)")
	add.Flags().StringVar(&entry.Time, "time", "", "entry time (HH:MM:SS, default now)")
	add.Flags().StringVar(&attachments, "attachments", "", "comma separated attachment names")
	cmd.AddCommand(add)

	cmd.AddCommand(&cobra.Command{
		Use:   "search [query...]",
		Short: "Search memory (no query shows the latest entries)",
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, err := a.router.SearchMemory(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return a.report(err)
			}
			if len(entries) == 0 {
				a.out.info("no entries")
			}
			for _, e := range entries {
				when := strings.TrimSpace(e.Date + " " + e.Time)
				if when != "" {
					a.out.info("[%s]", when)
				}
				a.out.info("you:    %s", e.User)
				a.out.info("jarvik: %s", e.Jarvik)
			}
			return nil
		},
	})

	var req account.MemoryDeleteRequest
	forget := &cobra.Command{
		Use:   "forget",
		Short: "Delete memory by time range or keyword",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if req.Empty() {
				return a.report(fmt.Errorf("set --from/--to or --keyword"))
			}
			msg, err := a.router.DeleteMemory(cmd.Context(), req)
			if err != nil {
				return a.report(err)
			}
			a.out.ok("%s", msg)
			return nil
		},
	}
	forget.Flags().StringVar(&req.From, "from", "", "start of the range (YYYY-MM-DD or YYYY-MM-DD HH:MM)")
	forget.Flags().StringVar(&req.To, "to", "", "end of the range")
	forget.Flags().StringVar(&req.Keyword, "keyword", "", "delete entries containing this text")
	cmd.AddCommand(forget)
	return cmd
}
