package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/threadboard/internal/views"
)

// PostsCommand returns the posts command
func PostsCommand() *cli.Command {
	return &cli.Command{
		Name:  "posts",
		Usage: "List or create posts",
		Subcommands: []*cli.Command{
			{
				Name:  "list",
				Usage: "Show every post with its comment tree",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Output format: pretty or json",
						Value:   "pretty",
					},
				},
				Action: withRuntime(runPostsList),
			},
			{
				Name:      "create",
				Usage:     "Publish a new post",
				ArgsUsage: "TEXT",
				Action:    withRuntime(runPostsCreate),
			},
		},
	}
}

// CommentCommand returns the comment command
func CommentCommand() *cli.Command {
	return &cli.Command{
		Name:      "comment",
		Usage:     "Comment on a post, or reply to a comment with --parent",
		ArgsUsage: "TEXT",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "post",
				Usage:    "Post `ID`",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "parent",
				Usage: "Parent comment `ID` (omit for a top-level comment)",
			},
		},
		Action: withRuntime(runComment),
	}
}

func runPostsList(c *cli.Context, rt *runtime) error {
	format := strings.ToLower(c.String("output"))
	if format != "pretty" && format != "json" {
		return fmt.Errorf("unsupported output format %q (must be pretty or json)", format)
	}

	view := views.NewDiscussionView(rt.client, rt.session)
	if err := view.Load(c.Context); err != nil {
		return err
	}
	if format == "json" {
		return views.WriteJSON(rt.out, view.Posts())
	}
	view.Render(rt.out, rt.theme)
	return nil
}

func runPostsCreate(c *cli.Context, rt *runtime) error {
	view := views.NewDiscussionView(rt.client, rt.session)
	if err := view.CreatePost(c.Context, strings.Join(c.Args().Slice(), " ")); err != nil {
		if msg := view.Message(); msg != "" {
			return errors.New(msg)
		}
		return err
	}
	fmt.Fprintln(rt.out, "Post created.")
	view.Render(rt.out, rt.theme)
	return nil
}

func runComment(c *cli.Context, rt *runtime) error {
	text := strings.Join(c.Args().Slice(), " ")
	postID := c.String("post")
	parentID := c.String("parent")

	var view *views.DiscussionView
	view = views.NewDiscussionView(rt.client, rt.session, views.WithOnChange(func() {
		if b, err := view.Block(postID, parentID); err == nil {
			b.Render(rt.out, rt.theme)
		}
	}))
	if err := view.Load(c.Context); err != nil {
		return err
	}
	card, err := view.Card(postID)
	if err != nil {
		return err
	}

	if parentID == "" {
		if err := card.SubmitComment(c.Context, text); err != nil {
			if msg := card.Error(); msg != "" {
				return errors.New(msg)
			}
			return err
		}
		fmt.Fprintln(rt.out, "Comment posted.")
		card.Render(rt.out, rt.theme)
		return nil
	}

	block, err := view.Block(postID, parentID)
	if err != nil {
		return err
	}
	if err := block.Reply(c.Context, text); err != nil {
		switch {
		case block.Error() == "":
			return err
		case errors.Is(err, views.ErrNoCredential), errors.Is(err, views.ErrEmptyText), errors.Is(err, views.ErrPendingParent):
			return errors.New(block.Error())
		default:
			return fmt.Errorf("reply rolled back: %s", block.Error())
		}
	}
	fmt.Fprintln(rt.out, "Reply posted.")
	if b, err := view.Block(postID, parentID); err == nil {
		b.Render(rt.out, rt.theme)
	}
	return nil
}
