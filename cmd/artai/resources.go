package main

import (
	"context"
	"fmt"

	"artai-go/internal/app"
	"artai-go/internal/artai"

	"github.com/spf13/cobra"
)

// pageQuery reads the --page and --user flags shared by paged listings.
func pageQuery(cmd *cobra.Command) artai.PageQuery {
	page, _ := cmd.Flags().GetInt("page")
	return artai.PageQuery{UserID: optionalInt64(cmd, "user"), Page: page}
}

func addPageFlags(cmd *cobra.Command) {
	cmd.Flags().IntP("page", "p", 1, "Page to show")
	cmd.Flags().Int64("user", 0, "Only entries of this user id")
}

// categories command
var categoriesCmd = &cobra.Command{
	Use:   "categories",
	Short: "Manage categories",
}

var categoriesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List categories",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runAuthed(cmd, "ListCategories", args, func(ctx context.Context, a *app.ArtaiApp, _ *artai.User) error {
			cats, err := a.Service().Categories(ctx)
			if err != nil {
				return err
			}
			if len(cats) == 0 {
				fmt.Println("No categories.")
				return nil
			}
			for _, c := range cats {
				fmt.Printf("#%-6d %-24s %s\n", c.ID, c.Name, deref(c.Description))
			}
			return nil
		})
	},
}

var categoriesCreateCmd = &cobra.Command{
	Use:   "create NAME",
	Short: "Create a category",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		description, _ := cmd.Flags().GetString("description")
		return runAuthed(cmd, "CreateCategory", args, func(ctx context.Context, a *app.ArtaiApp, _ *artai.User) error {
			c, err := a.Service().CreateCategory(ctx, args[0], description)
			if err != nil {
				return fmt.Errorf("creating category: %w", err)
			}
			fmt.Printf("Created category %s (#%d)\n", c.Name, c.ID)
			return nil
		})
	},
}

// tags command
var tagsCmd = &cobra.Command{
	Use:   "tags",
	Short: "Manage tags",
}

var tagsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tags",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runAuthed(cmd, "ListTags", args, func(ctx context.Context, a *app.ArtaiApp, _ *artai.User) error {
			tags, err := a.Service().Tags(ctx)
			if err != nil {
				return err
			}
			if len(tags) == 0 {
				fmt.Println("No tags.")
				return nil
			}
			for _, t := range tags {
				fmt.Printf("#%-6d %s\n", t.ID, t.Name)
			}
			return nil
		})
	},
}

var tagsCreateCmd = &cobra.Command{
	Use:   "create NAME",
	Short: "Create a tag",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runAuthed(cmd, "CreateTag", args, func(ctx context.Context, a *app.ArtaiApp, _ *artai.User) error {
			t, err := a.Service().CreateTag(ctx, args[0])
			if err != nil {
				return fmt.Errorf("creating tag: %w", err)
			}
			fmt.Printf("Created tag %s (#%d)\n", t.Name, t.ID)
			return nil
		})
	},
}

// likes commands
var likesCmd = &cobra.Command{
	Use:   "likes ID",
	Short: "Show who liked an image",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		return runAuthed(cmd, "ImageLikes", args, func(ctx context.Context, a *app.ArtaiApp, _ *artai.User) error {
			info, err := a.Service().Likes(ctx, id)
			if err != nil {
				return err
			}
			fmt.Printf("%d like(s)\n", info.Count)
			for _, u := range info.Users {
				if u.Username == nil {
					fmt.Println("  (deleted user)")
					continue
				}
				fmt.Printf("  %s\n", *u.Username)
			}
			return nil
		})
	},
}

func likeCommand(use, short, operation string, like bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " ID",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return runAuthed(cmd, operation, args, func(ctx context.Context, a *app.ArtaiApp, _ *artai.User) error {
				var msg *artai.Message
				if like {
					msg, err = a.Service().Like(ctx, id)
				} else {
					msg, err = a.Service().Unlike(ctx, id)
				}
				if err != nil {
					return err
				}
				fmt.Println(msg.Message)
				return nil
			})
		},
	}
}

var likeCmd = likeCommand("like", "Like an image", "LikeImage", true)
var unlikeCmd = likeCommand("unlike", "Remove your like from an image", "UnlikeImage", false)

// refs command
var refsCmd = &cobra.Command{
	Use:   "refs",
	Short: "Manage reference images",
}

var refsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List reference images",
	RunE: func(cmd *cobra.Command, args []string) error {
		q := pageQuery(cmd)
		return runAuthed(cmd, "ListReferenceImages", args, func(ctx context.Context, a *app.ArtaiApp, _ *artai.User) error {
			p, err := a.Service().ReferenceImages(ctx, q)
			if err != nil {
				return err
			}
			if len(p.Data) == 0 {
				fmt.Println("No reference images.")
				return nil
			}
			fmt.Printf("Page %d of %d (%d references)\n", p.CurrentPage, p.LastPage, p.Total)
			for _, r := range p.Data {
				fmt.Printf("#%-6d %s  %-24s %s\n", r.ID, formatTime(r.CreatedAt), deref(r.Description), a.Client().AssetURL(r.FilePath))
			}
			return nil
		})
	},
}

var refsAddCmd = &cobra.Command{
	Use:   "add PATH",
	Short: "Upload a reference image",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		description, _ := cmd.Flags().GetString("description")
		return runAuthed(cmd, "AddReferenceImage", args, func(ctx context.Context, a *app.ArtaiApp, _ *artai.User) error {
			r, err := a.AddReference(ctx, args[0], description)
			if err != nil {
				return fmt.Errorf("uploading reference: %w", err)
			}
			fmt.Printf("Uploaded reference #%d  %s\n", r.ID, a.Client().AssetURL(r.FilePath))
			return nil
		})
	},
}

// sessions command
var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Manage work sessions",
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List work sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		q := pageQuery(cmd)
		return runAuthed(cmd, "ListSessions", args, func(ctx context.Context, a *app.ArtaiApp, _ *artai.User) error {
			p, err := a.Service().Sessions(ctx, q)
			if err != nil {
				return err
			}
			if len(p.Data) == 0 {
				fmt.Println("No sessions.")
				return nil
			}
			fmt.Printf("Page %d of %d (%d sessions)\n", p.CurrentPage, p.LastPage, p.Total)
			for _, s := range p.Data {
				fmt.Printf("#%-6d user:%-6d %s  %s\n", s.ID, s.UserID, formatTime(s.StartedAt), formatTime(s.EndedAt))
			}
			return nil
		})
	},
}

var sessionsDeleteCmd = &cobra.Command{
	Use:   "delete ID",
	Short: "Delete a work session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		return runAuthed(cmd, "DeleteSession", args, func(ctx context.Context, a *app.ArtaiApp, _ *artai.User) error {
			msg, err := a.Service().DeleteSession(ctx, id)
			if err != nil {
				return fmt.Errorf("deleting session %d: %w", id, err)
			}
			fmt.Println(msg.Message)
			return nil
		})
	},
}

// generation commands
var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate an image from a prompt and optional images",
	RunE: func(cmd *cobra.Command, args []string) error {
		text, _ := cmd.Flags().GetString("prompt")
		title, _ := cmd.Flags().GetString("title")
		reference, _ := cmd.Flags().GetString("reference")
		image, _ := cmd.Flags().GetString("image")
		if text == "" && reference == "" && image == "" {
			return fmt.Errorf("pass --prompt, --reference or --image")
		}
		req := artai.GenerateRequest{
			Prompt:     text,
			Title:      title,
			IsPublic:   optionalBool(cmd, "public"),
			CategoryID: optionalInt64(cmd, "category"),
		}

		return runAuthed(cmd, "Generate", args, func(ctx context.Context, a *app.ArtaiApp, _ *artai.User) error {
			res, err := a.Generate(ctx, req, reference, image)
			if err != nil {
				return fmt.Errorf("generating: %w", err)
			}
			printImageResult(a, res)
			return nil
		})
	},
}

var editCmd = &cobra.Command{
	Use:   "edit ID PATH",
	Short: "Replace an image with an edited version",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		return runAuthed(cmd, "EditImage", args, func(ctx context.Context, a *app.ArtaiApp, _ *artai.User) error {
			res, err := a.EditImage(ctx, id, args[1])
			if err != nil {
				return fmt.Errorf("editing image %d: %w", id, err)
			}
			printImageResult(a, res)
			return nil
		})
	},
}

func init() {
	categoriesCmd.AddCommand(categoriesListCmd)
	categoriesCmd.AddCommand(categoriesCreateCmd)
	categoriesCreateCmd.Flags().String("description", "", "Category description")
	rootCmd.AddCommand(categoriesCmd)

	tagsCmd.AddCommand(tagsListCmd)
	tagsCmd.AddCommand(tagsCreateCmd)
	rootCmd.AddCommand(tagsCmd)

	rootCmd.AddCommand(likesCmd)
	rootCmd.AddCommand(likeCmd)
	rootCmd.AddCommand(unlikeCmd)

	refsCmd.AddCommand(refsListCmd)
	addPageFlags(refsListCmd)
	refsCmd.AddCommand(refsAddCmd)
	refsAddCmd.Flags().String("description", "", "Reference description")
	rootCmd.AddCommand(refsCmd)

	sessionsCmd.AddCommand(sessionsListCmd)
	addPageFlags(sessionsListCmd)
	sessionsCmd.AddCommand(sessionsDeleteCmd)
	rootCmd.AddCommand(sessionsCmd)

	rootCmd.AddCommand(generateCmd)
	generateCmd.Flags().String("prompt", "", "What to generate")
	generateCmd.Flags().String("reference", "", "Reference image (path, - or s3://bucket/key)")
	generateCmd.Flags().String("image", "", "Source image (path, - or s3://bucket/key)")
	generateCmd.Flags().StringP("title", "t", "", "Title of the result")
	generateCmd.Flags().Bool("public", false, "Make the result public")
	generateCmd.Flags().Int64("category", 0, "Primary category id")

	rootCmd.AddCommand(editCmd)
}
