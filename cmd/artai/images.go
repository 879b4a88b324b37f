package main

import (
	"context"
	"fmt"
	"strings"

	"artai-go/internal/app"
	"artai-go/internal/artai"

	"github.com/spf13/cobra"
)

func printImage(a *app.ArtaiApp, img *artai.Image) {
	visibility := "private"
	if img.IsPublic {
		visibility = "public"
	}
	fmt.Printf("#%-6d %-30s %-7s %s  %s\n", img.ID, img.Title, visibility, formatTime(img.CreatedAt), a.Client().AssetURL(img.FilePath))
}

func printImageResult(a *app.ArtaiApp, res *artai.ImageResult) {
	if res.Message != "" {
		fmt.Println(res.Message)
	}
	printImage(a, &res.Image)
}

func printCategories(ic *artai.ImageCategories) {
	if len(ic.Categories) == 0 {
		fmt.Println("No categories.")
		return
	}
	names := make([]string, len(ic.Categories))
	for i, c := range ic.Categories {
		names[i] = fmt.Sprintf("%s (#%d)", c.Name, c.ID)
	}
	fmt.Println(strings.Join(names, ", "))
}

var imagesCmd = &cobra.Command{
	Use:   "images",
	Short: "Browse and manage images",
}

var imagesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List images a page at a time",
	RunE: func(cmd *cobra.Command, args []string) error {
		page, _ := cmd.Flags().GetInt("page")
		mine, _ := cmd.Flags().GetBool("mine")
		withCategories, _ := cmd.Flags().GetBool("with-categories")
		q := artai.ImageQuery{
			Public:     optionalBool(cmd, "public"),
			UserID:     optionalInt64(cmd, "user"),
			CategoryID: optionalInt64(cmd, "category"),
			Page:       page,
		}

		return runAuthed(cmd, "ListImages", args, func(ctx context.Context, a *app.ArtaiApp, u *artai.User) error {
			if mine {
				q.UserID = &u.ID
			}
			g := a.NewGallery(q)
			view, err := g.Load(ctx)
			if err != nil {
				return fmt.Errorf("listing images: %w", err)
			}

			p := view.Page
			if len(p.Data) == 0 {
				fmt.Println("No images found.")
				return nil
			}
			var cats map[int64][]artai.Category
			if withCategories {
				if cats, err = g.PageCategories(ctx); err != nil {
					return fmt.Errorf("loading categories: %w", err)
				}
			}

			fmt.Printf("Page %d of %d (%d images)\n", p.CurrentPage, p.LastPage, p.Total)
			for i := range p.Data {
				printImage(a, &p.Data[i])
				if withCategories && len(cats[p.Data[i].ID]) > 0 {
					printCategories(&artai.ImageCategories{Categories: cats[p.Data[i].ID]})
				}
			}
			return nil
		})
	},
}

var imagesGetCmd = &cobra.Command{
	Use:   "get ID",
	Short: "Show one image",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		return runAuthed(cmd, "GetImage", args, func(ctx context.Context, a *app.ArtaiApp, _ *artai.User) error {
			img, err := a.Service().GetImage(ctx, id)
			if err != nil {
				return err
			}
			printImage(a, img)
			if d := deref(img.Description); d != "" {
				fmt.Printf("\n%s\n", d)
			}
			return nil
		})
	},
}

var imagesUploadCmd = &cobra.Command{
	Use:   "upload PATH",
	Short: "Upload an image (a local path, - for stdin, or s3://bucket/key)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		title, _ := cmd.Flags().GetString("title")
		description, _ := cmd.Flags().GetString("description")
		status, _ := cmd.Flags().GetString("status")
		in := artai.NewImage{
			Title:       title,
			Description: description,
			Status:      status,
			IsPublic:    optionalBool(cmd, "public"),
			CategoryID:  optionalInt64(cmd, "category"),
		}

		return runAuthed(cmd, "UploadImage", args, func(ctx context.Context, a *app.ArtaiApp, _ *artai.User) error {
			res, err := a.UploadImage(ctx, args[0], in)
			if err != nil {
				return fmt.Errorf("uploading: %w", err)
			}
			printImageResult(a, res)
			return nil
		})
	},
}

var imagesUpdateCmd = &cobra.Command{
	Use:   "update ID",
	Short: "Change an image's fields or content",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		file, _ := cmd.Flags().GetString("file")
		clearCategory, _ := cmd.Flags().GetBool("clear-category")
		patch := artai.ImagePatch{
			Title:       optionalString(cmd, "title"),
			Description: optionalString(cmd, "description"),
			Status:      optionalString(cmd, "status"),
			IsPublic:    optionalBool(cmd, "public"),
		}
		switch {
		case clearCategory && file != "":
			return fmt.Errorf("--clear-category cannot be combined with --file")
		case clearCategory:
			var none *int64
			patch.CategoryID = &none
		case cmd.Flags().Changed("category"):
			c := optionalInt64(cmd, "category")
			patch.CategoryID = &c
		}

		return runAuthed(cmd, "UpdateImage", args, func(ctx context.Context, a *app.ArtaiApp, _ *artai.User) error {
			res, err := a.UpdateImage(ctx, id, file, patch)
			if err != nil {
				return fmt.Errorf("updating image %d: %w", id, err)
			}
			printImageResult(a, res)
			return nil
		})
	},
}

var imagesDeleteCmd = &cobra.Command{
	Use:   "delete ID",
	Short: "Delete an image",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		return runAuthed(cmd, "DeleteImage", args, func(ctx context.Context, a *app.ArtaiApp, _ *artai.User) error {
			msg, err := a.Service().DeleteImage(ctx, id)
			if err != nil {
				return fmt.Errorf("deleting image %d: %w", id, err)
			}
			fmt.Println(msg.Message)
			return nil
		})
	},
}

var imagesHistoryCmd = &cobra.Command{
	Use:   "history ID",
	Short: "Show the recorded actions on an image",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		return runAuthed(cmd, "ImageHistory", args, func(ctx context.Context, a *app.ArtaiApp, _ *artai.User) error {
			entries, err := a.Service().ImageHistory(ctx, id)
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Println("No history.")
				return nil
			}
			for _, h := range entries {
				file := ""
				if h.FilePath != nil {
					file = a.Client().AssetURL(*h.FilePath)
				}
				fmt.Printf("#%-6d %s  %-12s %s\n", h.ID, formatTime(h.CreatedAt), h.Action, file)
			}
			return nil
		})
	},
}

var imagesHistoryAddCmd = &cobra.Command{
	Use:   "history-add ID",
	Short: "Record an action on an image",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		action, _ := cmd.Flags().GetString("action")
		file, _ := cmd.Flags().GetString("file")

		return runAuthed(cmd, "AddImageHistory", args, func(ctx context.Context, a *app.ArtaiApp, _ *artai.User) error {
			h, err := a.AddHistory(ctx, id, action, file)
			if err != nil {
				return fmt.Errorf("recording history: %w", err)
			}
			fmt.Printf("Recorded %s (#%d)\n", h.Action, h.ID)
			return nil
		})
	},
}

var imagesCategoriesCmd = &cobra.Command{
	Use:   "categories ID",
	Short: "Show the categories assigned to an image",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		return runAuthed(cmd, "ImageCategories", args, func(ctx context.Context, a *app.ArtaiApp, _ *artai.User) error {
			ic, err := a.Service().ImageCategories(ctx, id)
			if err != nil {
				return err
			}
			printCategories(ic)
			return nil
		})
	},
}

var imagesCategorizeCmd = &cobra.Command{
	Use:   "categorize ID",
	Short: "Add, remove or replace an image's categories",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		add := optionalInt64(cmd, "add")
		remove := optionalInt64(cmd, "remove")
		set := optionalString(cmd, "set")
		given := 0
		for _, ok := range []bool{add != nil, remove != nil, set != nil} {
			if ok {
				given++
			}
		}
		if given != 1 {
			return fmt.Errorf("pass exactly one of --add, --remove or --set")
		}

		return runAuthed(cmd, "CategorizeImage", args, func(ctx context.Context, a *app.ArtaiApp, _ *artai.User) error {
			var ic *artai.ImageCategories
			var err error
			switch {
			case add != nil:
				ic, err = a.Service().AddImageCategory(ctx, id, *add)
			case remove != nil:
				ic, err = a.Service().RemoveImageCategory(ctx, id, *remove)
			default:
				ic, err = a.Service().SetImageCategoriesCSV(ctx, id, *set)
			}
			if err != nil {
				return fmt.Errorf("categorizing image %d: %w", id, err)
			}
			printCategories(ic)
			return nil
		})
	},
}

func init() {
	imagesCmd.AddCommand(imagesListCmd)
	imagesListCmd.Flags().IntP("page", "p", 1, "Page to show")
	imagesListCmd.Flags().Int64P("category", "c", 0, "Only images in this category")
	imagesListCmd.Flags().Bool("public", false, "Only public (true) or private (false) images")
	imagesListCmd.Flags().Int64("user", 0, "Only images of this user id")
	imagesListCmd.Flags().Bool("mine", false, "Only your own images")
	imagesListCmd.Flags().Bool("with-categories", false, "Show the categories of each image")

	imagesCmd.AddCommand(imagesGetCmd)

	imagesCmd.AddCommand(imagesUploadCmd)
	imagesUploadCmd.Flags().StringP("title", "t", "", "Image title")
	imagesUploadCmd.Flags().String("description", "", "Image description")
	imagesUploadCmd.Flags().String("status", "", "Image status")
	imagesUploadCmd.Flags().Bool("public", false, "Make the image public")
	imagesUploadCmd.Flags().Int64("category", 0, "Primary category id")

	imagesCmd.AddCommand(imagesUpdateCmd)
	imagesUpdateCmd.Flags().String("file", "", "Replace the content with this file")
	imagesUpdateCmd.Flags().StringP("title", "t", "", "New title")
	imagesUpdateCmd.Flags().String("description", "", "New description")
	imagesUpdateCmd.Flags().String("status", "", "New status")
	imagesUpdateCmd.Flags().Bool("public", false, "Make the image public (true) or private (false)")
	imagesUpdateCmd.Flags().Int64("category", 0, "New primary category id")
	imagesUpdateCmd.Flags().Bool("clear-category", false, "Remove the primary category")

	imagesCmd.AddCommand(imagesDeleteCmd)
	imagesCmd.AddCommand(imagesHistoryCmd)
	imagesCmd.AddCommand(imagesHistoryAddCmd)
	imagesHistoryAddCmd.Flags().String("action", "", "Action name (the server default when empty)")
	imagesHistoryAddCmd.Flags().String("file", "", "File produced by the action")

	imagesCmd.AddCommand(imagesCategoriesCmd)
	imagesCmd.AddCommand(imagesCategorizeCmd)
	imagesCategorizeCmd.Flags().Int64("add", 0, "Assign this category id")
	imagesCategorizeCmd.Flags().Int64("remove", 0, "Unassign this category id")
	imagesCategorizeCmd.Flags().String("set", "", "Replace the set with a comma-separated id list")

	rootCmd.AddCommand(imagesCmd)
}
