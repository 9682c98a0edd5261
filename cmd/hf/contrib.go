package main

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"hostflow/internal/catalog"
	"hostflow/internal/domain"
	"hostflow/internal/media"
	"hostflow/internal/membership"
	"hostflow/internal/phone"
	"hostflow/internal/workflow"
	hostflowsdk "hostflow/sdk/go"
)

func listingCmd() *cobra.Command {
	c := &cobra.Command{Use: "listing", Short: "Create and manage contributions"}
	c.AddCommand(listingCreateCmd())
	c.AddCommand(listingEditCmd())
	c.AddCommand(listingResumeCmd())
	c.AddCommand(listingShowCmd())
	c.AddCommand(listingMineCmd())
	c.AddCommand(listingApproveCmd())
	return c
}

func listingCreateCmd() *cobra.Command {
	var file string
	var images []string
	var draftOnly bool
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Walk a contribution document through every step and submit it",
		RunE: func(cmd *cobra.Command, args []string) error {
			contrib, err := readContribution(file)
			if err != nil {
				return err
			}
			c, session, err := resolve(cmd.Context())
			if err != nil {
				return err
			}
			w, err := newWorkflow(contrib.Kind(), c, session)
			if err != nil {
				return err
			}
			defer w.Close()
			if err := w.Fill(contrib); err != nil {
				return err
			}
			return complete(cmd.Context(), w, images, draftOnly)
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "contribution YAML document")
	cmd.Flags().StringSliceVar(&images, "image", nil, "image to attach (repeatable)")
	cmd.Flags().BoolVar(&draftOnly, "draft", false, "stop before submitting")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func listingEditCmd() *cobra.Command {
	var file, kind string
	var images []string
	var draftOnly bool
	cmd := &cobra.Command{
		Use:   "edit <id>",
		Short: "Load an entity, apply changes and resubmit",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var contrib domain.Contribution
			if file != "" {
				var err error
				if contrib, err = readContribution(file); err != nil {
					return err
				}
				kind = string(contrib.Kind())
			}
			k, err := domain.ParseKind(kind)
			if err != nil {
				return err
			}
			c, session, err := resolve(cmd.Context())
			if err != nil {
				return err
			}
			w, err := newWorkflow(k, c, session)
			if err != nil {
				return err
			}
			defer w.Close()
			if err := w.Load(cmd.Context(), args[0]); err != nil {
				return err
			}
			if w.State() == workflow.StateReadOnly {
				return workflow.ErrReadOnly
			}
			if contrib != nil {
				if err := w.Fill(contrib); err != nil {
					return err
				}
			}
			return complete(cmd.Context(), w, images, draftOnly)
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "contribution YAML with changed fields")
	cmd.Flags().StringVar(&kind, "kind", "", "entity kind when no file is given")
	cmd.Flags().StringSliceVar(&images, "image", nil, "image to attach (repeatable)")
	cmd.Flags().BoolVar(&draftOnly, "draft", false, "stop before submitting")
	return cmd
}

func listingResumeCmd() *cobra.Command {
	var file, kind string
	var images []string
	cmd := &cobra.Command{
		Use:   "resume",
		Short: "Continue the newest unsubmitted draft of a kind",
		RunE: func(cmd *cobra.Command, args []string) error {
			k, err := domain.ParseKind(kind)
			if err != nil {
				return err
			}
			c, session, err := resolve(cmd.Context())
			if err != nil {
				return err
			}
			w, err := newWorkflow(k, c, session)
			if err != nil {
				return err
			}
			defer w.Close()
			found, err := w.ResumeDraft(cmd.Context())
			if err != nil {
				return err
			}
			if !found {
				return fmt.Errorf("no %s draft to resume", k)
			}
			if file != "" {
				contrib, err := readContribution(file)
				if err != nil {
					return err
				}
				if err := w.Fill(contrib); err != nil {
					return err
				}
			}
			return complete(cmd.Context(), w, images, false)
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "", "entity kind")
	cmd.Flags().StringVarP(&file, "file", "f", "", "contribution YAML with missing fields")
	cmd.Flags().StringSliceVar(&images, "image", nil, "image to attach (repeatable)")
	_ = cmd.MarkFlagRequired("kind")
	return cmd
}

func listingShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show an entity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, _, err := resolve(cmd.Context())
			if err != nil {
				return err
			}
			ent, err := c.GetEntity(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(ent)
			}
			tw := newTable()
			tw.AppendHeader(table.Row{"Field", "Value"})
			tw.AppendRow(table.Row{"id", ent.ID})
			tw.AppendRow(table.Row{"kind", ent.Kind})
			tw.AppendRow(table.Row{"status", ent.Status})
			names := make([]string, 0, len(ent.Fields))
			for k := range ent.Fields {
				names = append(names, k)
			}
			sort.Strings(names)
			for _, k := range names {
				tw.AppendRow(table.Row{k, fmt.Sprint(ent.Fields[k])})
			}
			for _, m := range ent.Media {
				tw.AppendRow(table.Row{"media", fmt.Sprintf("%s (%d bytes)", m.URL, m.Size)})
			}
			tw.Render()
			return nil
		},
	}
}

func listingMineCmd() *cobra.Command {
	var q catalog.Query
	var kind, status string
	cmd := &cobra.Command{
		Use:   "mine",
		Short: "List your entities",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, _, err := resolve(cmd.Context())
			if err != nil {
				return err
			}
			items, err := c.MyEntities(cmd.Context())
			if err != nil {
				return err
			}
			q.Kind, q.Status = domain.Kind(kind), domain.Status(status)
			items = catalog.Filter(items, q)
			if viper.GetBool("json") {
				if items == nil {
					items = []hostflowsdk.Entity{}
				}
				return printJSON(items)
			}
			tw := newTable()
			tw.AppendHeader(table.Row{"ID", "Kind", "Title", "Status", "Updated"})
			for _, e := range items {
				tw.AppendRow(table.Row{e.ID, e.Kind, fmt.Sprint(e.Fields["title"]), e.Status, e.UpdatedAt})
			}
			tw.Render()
			return nil
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "", "kind filter")
	cmd.Flags().StringVar(&status, "status", "", "status filter")
	cmd.Flags().StringVar(&q.City, "city", "", "city filter")
	cmd.Flags().StringVarP(&q.Text, "query", "q", "", "text search")
	return cmd
}

func listingApproveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "approve <id>",
		Short: "Approve a submitted entity (moderators)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, _, err := resolve(cmd.Context())
			if err != nil {
				return err
			}
			ent, err := c.Approve(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(ent)
			}
			fmt.Printf("%s %s is %s\n", ent.Kind, ent.ID, ent.Status)
			return nil
		},
	}
}

func groupCmd() *cobra.Command {
	c := &cobra.Command{Use: "group", Short: "Join or leave community groups"}
	run := func(action string) func(cmd *cobra.Command, args []string) error {
		return func(cmd *cobra.Command, args []string) error {
			c, _, err := resolve(cmd.Context())
			if err != nil {
				return err
			}
			t := membership.NewTracker(args[0], c, log.Named("membership"))
			switch action {
			case "join":
				err = t.Join(cmd.Context())
			case "leave":
				err = t.Leave(cmd.Context())
			}
			if err != nil {
				return err
			}
			m, err := c.Membership(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(m)
			}
			state := "not a member"
			if m.Member {
				state = "member (" + m.Role + ")"
			}
			fmt.Printf("group %s: %s, %d members\n", m.GroupID, state, m.Members)
			return nil
		}
	}
	for _, action := range []string{"join", "leave", "status"} {
		c.AddCommand(&cobra.Command{
			Use:   action + " <group-id>",
			Short: strings.ToUpper(action[:1]) + action[1:] + " group membership",
			Args:  cobra.ExactArgs(1),
			RunE:  run(action),
		})
	}
	return c
}

func mediaCmd() *cobra.Command {
	c := &cobra.Command{Use: "media", Short: "Image tools"}
	var out string
	var maxW, maxH, quality int
	compress := &cobra.Command{
		Use:   "compress <image>",
		Short: "Compress an image the way uploads are compressed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			if maxW == 0 {
				maxW = cfg.Media.MaxWidth
			}
			if maxH == 0 {
				maxH = cfg.Media.MaxHeight
			}
			if quality == 0 {
				quality = cfg.Media.Quality
			}
			res, err := media.Compress(f, maxW, maxH, quality)
			if err != nil {
				return err
			}
			if out == "" {
				out = strings.TrimSuffix(args[0], filepath.Ext(args[0])) + ".min.jpg"
			}
			if err := os.WriteFile(out, res.Data, 0o644); err != nil {
				return err
			}
			summary := map[string]any{
				"output": out, "bytes": len(res.Data),
				"width": res.Width, "height": res.Height,
				"source_width": res.SourceWidth, "source_height": res.SourceHeight,
			}
			if viper.GetBool("json") {
				return printJSON(summary)
			}
			fmt.Printf("%s: %dx%d -> %dx%d, %d bytes\n", out, res.SourceWidth, res.SourceHeight, res.Width, res.Height, len(res.Data))
			return nil
		},
	}
	compress.Flags().StringVarP(&out, "output", "o", "", "output path (default <name>.min.jpg)")
	compress.Flags().IntVar(&maxW, "max-width", 0, "bounding width (default from config)")
	compress.Flags().IntVar(&maxH, "max-height", 0, "bounding height (default from config)")
	compress.Flags().IntVar(&quality, "quality", 0, "JPEG quality 1..100 (default from config)")
	c.AddCommand(compress)
	return c
}

func phoneCmd() *cobra.Command {
	c := &cobra.Command{Use: "phone", Short: "Phone number tools"}
	c.AddCommand(&cobra.Command{
		Use:   "split <number>",
		Short: "Split a phone number into country code and number",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p := phone.SplitWithDefault(args[0], cfg.Phone.DefaultCode)
			if viper.GetBool("json") {
				return printJSON(p)
			}
			fmt.Printf("code=%s number=%s\n", p.Code, p.Number)
			return nil
		},
	})
	return c
}

func newWorkflow(kind domain.Kind, c *hostflowsdk.Client, session domain.Session) (*workflow.Workflow, error) {
	last := -1
	return workflow.New(kind, c, session,
		workflow.WithLogger(log.Named("workflow")),
		workflow.WithMediaLimits(workflow.MediaLimits{
			MaxWidth:  cfg.Media.MaxWidth,
			MaxHeight: cfg.Media.MaxHeight,
			Quality:   cfg.Media.Quality,
		}),
		workflow.WithPhoneDefault(cfg.Phone.DefaultCode),
		workflow.WithProgress(func(p int) {
			if p != last && !viper.GetBool("json") {
				fmt.Fprintf(os.Stderr, "\rupload %3d%%", p)
				if p == 100 {
					fmt.Fprintln(os.Stderr)
				}
			}
			last = p
		}),
	)
}

// complete attaches images, advances to the last step and submits unless
// draftOnly is set.
func complete(ctx context.Context, w *workflow.Workflow, images []string, draftOnly bool) error {
	for _, path := range images {
		f, err := readImage(path)
		if err != nil {
			return err
		}
		if _, err := w.AddMedia(f); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
	}
	for !w.Step().Last() {
		log.Debug("advancing", zap.String("step", w.CurrentStep().Name))
		if err := w.Next(ctx); err != nil {
			return err
		}
	}
	if !draftOnly {
		if err := w.Submit(ctx); err != nil {
			return err
		}
	}
	return printWorkflow(w)
}

func printWorkflow(w *workflow.Workflow) error {
	summary := map[string]any{
		"id":    w.Draft().ID,
		"kind":  w.Kind(),
		"state": w.State(),
		"step":  w.CurrentStep().Name,
	}
	if viper.GetBool("json") {
		return printJSON(summary)
	}
	fmt.Printf("%s %s: %s (step %s)\n", w.Kind(), w.Draft().ID, w.State(), w.CurrentStep().Name)
	return nil
}

func readContribution(path string) (domain.Contribution, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return domain.DecodeContribution(data)
}

func readImage(path string) (domain.File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.File{}, err
	}
	if len(data) == 0 {
		return domain.File{}, errors.New(path + ": empty file")
	}
	ct := mime.TypeByExtension(filepath.Ext(path))
	if ct == "" {
		ct = http.DetectContentType(data)
	}
	return domain.File{Name: filepath.Base(path), ContentType: ct, Data: data}, nil
}
