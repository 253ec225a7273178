package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"groupdraw-server-go/assign"
	"groupdraw-server-go/models"
	"groupdraw-server-go/roster"
)

func newDrawCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "draw",
		Short: "Draw groups from a roster file and print them",
		RunE:  runDraw,
	}
	cmd.Flags().String("roster", "", "roster file (.csv or .xlsx); defaults to roster.path")
	cmd.Flags().Int("size", 0, "target group size; defaults to draw.default_size")
	cmd.Flags().Uint64("seed", 0, "seed for a reproducible draw")
	cmd.Flags().Bool("overflow", false, "let leftover returners exceed the group size")
	cmd.Flags().String("save", "", "save the draw under this name")
	cmd.Flags().String("format", "text", "output format: text, json or csv")
	return cmd
}

func runDraw(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	path, _ := cmd.Flags().GetString("roster")
	if path == "" {
		path = cfg.Roster.Path
	}
	r, err := loadRosterFile(path)
	if err != nil {
		return fmt.Errorf("failed to load roster %s: %w", path, err)
	}

	size, _ := cmd.Flags().GetInt("size")
	if size == 0 {
		size = cfg.Draw.DefaultSize
	}
	if size < cfg.Draw.MinSize || size > cfg.Draw.MaxSize {
		return fmt.Errorf("size must be between %d and %d", cfg.Draw.MinSize, cfg.Draw.MaxSize)
	}

	var opts []assign.Option
	if cmd.Flags().Changed("seed") {
		seed, _ := cmd.Flags().GetUint64("seed")
		opts = append(opts, assign.WithSeed(seed))
	}
	if overflow, _ := cmd.Flags().GetBool("overflow"); overflow || cfg.Draw.Overflow {
		opts = append(opts, assign.WithOverflow())
	}

	result, err := assign.Assign(r.Students(), size, nil, opts...)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	format, _ := cmd.Flags().GetString("format")
	switch format {
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(result); err != nil {
			return err
		}
	case "csv":
		if err := roster.WriteCSV(out, roster.ExportRows(r, nil, result.Groups)); err != nil {
			return err
		}
	case "text":
		printGroups(out, r, result)
	default:
		return fmt.Errorf("unknown format %q", format)
	}

	if name, _ := cmd.Flags().GetString("save"); name != "" {
		store, _, err := openStore(cfg)
		if err != nil {
			return err
		}
		id, err := store.Save(result.Groups, name, nil)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "saved draw %q with id %d\n", name, id)
	}
	return nil
}

func printGroups(w io.Writer, r *roster.Roster, result *assign.Result) {
	for idx, group := range result.Groups {
		c := assign.Classify(group, r)
		fmt.Fprintf(w, "Grupo %d (%d membros, %s)\n", idx+1, len(group), c)
		for _, name := range group {
			cohort, _ := r.Cohort(name)
			fmt.Fprintf(w, "  - %s (%s)\n", name, cohort.Label())
		}
	}
	if len(result.Unassigned) > 0 {
		fmt.Fprintf(w, "Sem grupo: %s\n", strings.Join(result.Unassigned, ", "))
	}
	fmt.Fprintf(w, "seed: %d\n", result.Seed)
}

func newSearchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "search <name>",
		Short: "Find which saved groups a student was placed in",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			store, _, err := openStore(cfg)
			if err != nil {
				return err
			}
			matches, err := store.Search(strings.Join(args, " "))
			if err != nil {
				return err
			}
			if len(matches) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no matches")
				return nil
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tSORTEIO\tDATA\tTIPO\tGRUPO\tALUNO\tMEMBROS")
			for _, m := range matches {
				fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%d\t%s\t%s\n",
					m.DrawID, m.DrawName, m.Timestamp, m.Kind, m.GroupNumber, m.Student, strings.Join(m.Members, ", "))
			}
			return tw.Flush()
		},
	}
}

func newDrawsCmd() *cobra.Command {
	draws := &cobra.Command{
		Use:   "draws",
		Short: "Manage saved draws",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List saved draws, newest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			store, _, err := openStore(cfg)
			if err != nil {
				return err
			}
			all, err := store.LoadAll()
			if err != nil {
				return err
			}
			return printDraws(cmd.OutOrStdout(), all)
		},
	}

	del := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a saved draw",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid draw id %q", args[0])
			}
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			store, _, err := openStore(cfg)
			if err != nil {
				return err
			}
			if _, err := store.Delete(id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted draw %d\n", id)
			return nil
		},
	}

	draws.AddCommand(list, del)
	return draws
}

func printDraws(w io.Writer, draws []models.Draw) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNOME\tDATA\tGRUPOS\tALUNOS")
	for i := len(draws) - 1; i >= 0; i-- {
		d := draws[i]
		students := 0
		for _, g := range d.Automatic {
			students += len(g)
		}
		for _, g := range d.Manual {
			students += len(g)
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%d\n", d.ID, d.Name, d.Timestamp, len(d.Automatic)+len(d.Manual), students)
	}
	return tw.Flush()
}
