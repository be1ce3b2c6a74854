package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/oakensoul/aida/internal/detect"
	"github.com/oakensoul/aida/internal/memento"
	"github.com/oakensoul/aida/internal/record"
)

var (
	// memento command flags
	mSlug        string
	mDescription string
	mIssue       string
	mPR          string
	mContext     string
	mProgress    string
	mNextSteps   string
	mProject     string
	mStatus      string
	mAllProjects bool
	mArchive     bool
)

func init() {
	rootCmd.AddCommand(mementoCmd)
	mementoCmd.AddCommand(mementoSaveCmd)
	mementoCmd.AddCommand(mementoListCmd)
	mementoCmd.AddCommand(mementoShowCmd)
	mementoCmd.AddCommand(mementoCompleteCmd)
	mementoCmd.AddCommand(mementoRemoveCmd)

	mementoCmd.PersistentFlags().StringVar(&mProject, "project", "", "project namespace (default: detected from working directory)")

	mementoSaveCmd.Flags().StringVar(&mSlug, "slug", "", "kebab-case identifier (required)")
	mementoSaveCmd.Flags().StringVar(&mDescription, "description", "", "one-line summary (required)")
	mementoSaveCmd.Flags().StringVar(&mIssue, "issue", "", "related issue reference")
	mementoSaveCmd.Flags().StringVar(&mPR, "pr", "", "related pull request reference")
	mementoSaveCmd.Flags().StringVar(&mContext, "context", "", "Context section content")
	mementoSaveCmd.Flags().StringVar(&mProgress, "progress", "", "Progress section content")
	mementoSaveCmd.Flags().StringVar(&mNextSteps, "next-steps", "", "Next Steps section content")
	_ = mementoSaveCmd.MarkFlagRequired("slug")
	_ = mementoSaveCmd.MarkFlagRequired("description")

	mementoListCmd.Flags().StringVar(&mStatus, "status", "active", "filter: active, completed, or all")
	mementoListCmd.Flags().BoolVar(&mAllProjects, "all-projects", false, "list across all projects")
	mementoListCmd.Flags().BoolVar(&mArchive, "archive", false, "include the completed archive")

	mementoRemoveCmd.Flags().BoolVar(&mArchive, "archive", false, "also remove from the completed archive")
}

var mementoCmd = &cobra.Command{
	Use:   "memento",
	Short: "Manage session mementos",
	Long: `Manage session mementos: small markdown records that capture where a
working session left off, namespaced by project.

Examples:
  # Save a memento for the current project
  aida memento save --slug fix-auth-bug --description "Track the auth fix"

  # List active mementos for the current project
  aida memento list

  # Show one memento
  aida memento show fix-auth-bug

  # Complete (archive) a memento
  aida memento complete fix-auth-bug`,
}

var mementoSaveCmd = &cobra.Command{
	Use:   "save",
	Short: "Save a new memento",
	RunE:  runMementoSave,
}

var mementoListCmd = &cobra.Command{
	Use:   "list",
	Short: "List mementos",
	RunE:  runMementoList,
}

var mementoShowCmd = &cobra.Command{
	Use:   "show <slug>",
	Short: "Show a memento",
	Args:  cobra.ExactArgs(1),
	RunE:  runMementoShow,
}

var mementoCompleteCmd = &cobra.Command{
	Use:   "complete <slug>",
	Short: "Mark a memento completed and archive it",
	Args:  cobra.ExactArgs(1),
	RunE:  runMementoComplete,
}

var mementoRemoveCmd = &cobra.Command{
	Use:   "remove <slug>",
	Short: "Remove a memento (absent is success)",
	Args:  cobra.ExactArgs(1),
	RunE:  runMementoRemove,
}

// currentProject resolves the project namespace: explicit flag first,
// detection from the working directory otherwise.
func currentProject() (string, *detect.Facts, error) {
	wd, err := os.Getwd()
	if err != nil {
		return "", nil, fmt.Errorf("getting working directory: %w", err)
	}
	facts, err := detect.Project(wd)
	if err != nil {
		return "", nil, err
	}
	if mProject != "" {
		if err := record.ValidateProjectName(mProject); err != nil {
			return "", nil, err
		}
		return mProject, facts, nil
	}
	return facts.Name, facts, nil
}

func runMementoSave(cmd *cobra.Command, args []string) error {
	project, facts, err := currentProject()
	if err != nil {
		return err
	}
	store, err := openStore()
	if err != nil {
		return err
	}

	m := &record.Memento{
		Slug:        mSlug,
		Description: mDescription,
		Status:      record.StatusActive,
		Project: record.ProjectInfo{
			Name:   project,
			Path:   facts.Root,
			Repo:   facts.Repo,
			Branch: facts.Branch,
		},
		Issue: mIssue,
		PR:    mPR,
	}
	if mContext != "" {
		m.AppendSection("Context", mContext)
	}
	if mProgress != "" {
		m.AppendSection("Progress", mProgress)
	}
	if mNextSteps != "" {
		m.AppendSection("Next Steps", mNextSteps)
	}

	if err := store.Create(context.Background(), m); err != nil {
		return err
	}

	if outputJSON {
		return printJSON(m)
	}
	fmt.Printf("Memento saved: %s\n", m.Key())
	return nil
}

func runMementoList(cmd *cobra.Command, args []string) error {
	opts := memento.ListOptions{
		Status:         memento.StatusFilter(mStatus),
		AllProjects:    mAllProjects,
		IncludeArchive: mArchive || mStatus != "active",
	}
	switch opts.Status {
	case memento.FilterActive, memento.FilterCompleted, memento.FilterAll:
	default:
		return fmt.Errorf("invalid status filter: %s (valid: active, completed, all)", mStatus)
	}
	if !mAllProjects {
		project, _, err := currentProject()
		if err != nil {
			return err
		}
		opts.Project = project
	}

	store, err := openStore()
	if err != nil {
		return err
	}
	results, err := store.List(context.Background(), opts)
	if err != nil {
		return err
	}

	if outputJSON {
		if results == nil {
			results = []*record.Memento{}
		}
		return printJSON(results)
	}

	if len(results) == 0 {
		fmt.Println("No mementos found")
		return nil
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PROJECT\tSLUG\tSTATUS\tUPDATED\tDESCRIPTION")
	for _, m := range results {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			truncate(m.Project.Name, 24),
			truncate(m.Slug, 30),
			m.Status,
			m.Updated.Format("2006-01-02 15:04"),
			truncate(m.Description, 50),
		)
	}
	return w.Flush()
}

func runMementoShow(cmd *cobra.Command, args []string) error {
	key, err := resolveKey(args[0])
	if err != nil {
		return err
	}
	store, err := openStore()
	if err != nil {
		return err
	}
	m, err := store.Read(context.Background(), key)
	if err != nil {
		return err
	}

	if outputJSON {
		return printJSON(m)
	}

	fmt.Printf("%s: %s\n", m.Key(), m.Description)
	fmt.Printf("Status: %s\n", m.Status)
	fmt.Printf("Updated: %s\n", m.Updated.Format("2006-01-02 15:04:05"))
	if m.Issue != "" {
		fmt.Printf("Issue: %s\n", m.Issue)
	}
	if m.PR != "" {
		fmt.Printf("PR: %s\n", m.PR)
	}
	for _, s := range m.Sections {
		fmt.Printf("\n## %s\n\n%s\n", s.Title, s.Body)
	}
	return nil
}

func runMementoComplete(cmd *cobra.Command, args []string) error {
	key, err := resolveKey(args[0])
	if err != nil {
		return err
	}
	store, err := openStore()
	if err != nil {
		return err
	}
	if err := store.Complete(context.Background(), key); err != nil {
		return err
	}
	fmt.Printf("Memento completed: %s\n", key)
	return nil
}

func runMementoRemove(cmd *cobra.Command, args []string) error {
	key, err := resolveKey(args[0])
	if err != nil {
		return err
	}
	store, err := openStore()
	if err != nil {
		return err
	}
	if err := store.Remove(context.Background(), key, mArchive); err != nil {
		return err
	}
	fmt.Printf("Memento removed: %s\n", key)
	return nil
}

// resolveKey builds a composite key from a slug argument. A full
// "project--slug" argument overrides detection.
func resolveKey(arg string) (record.Key, error) {
	if strings.Contains(arg, record.KeySeparator) {
		parts := strings.SplitN(arg, record.KeySeparator, 2)
		key := record.Key{Project: parts[0], Slug: parts[1]}
		return key, key.Validate()
	}
	project, _, err := currentProject()
	if err != nil {
		return record.Key{}, err
	}
	key := record.Key{Project: project, Slug: arg}
	return key, key.Validate()
}
