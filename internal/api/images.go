package api

import (
	"context"
	"strconv"
	"strings"

	"artai-go/internal/artai"
)

func imagePath(id int64, suffix string) string {
	return "/images/" + strconv.FormatInt(id, 10) + suffix
}

// ListImages returns one page of the image listing. Nil filters are omitted.
func (c *Client) ListImages(ctx context.Context, q artai.ImageQuery) (*artai.Paginated[artai.Image], error) {
	v := pageQuery(q.UserID, q.Page)
	if q.Public != nil {
		if *q.Public {
			v.Set("public", "1")
		} else {
			v.Set("public", "0")
		}
	}
	if q.CategoryID != nil {
		v.Set("category_id", strconv.FormatInt(*q.CategoryID, 10))
	}
	var out artai.Paginated[artai.Image]
	if err := c.do(ctx, get("/images", v), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GetImage(ctx context.Context, id int64) (*artai.Image, error) {
	var out artai.Image
	if err := c.do(ctx, get(imagePath(id, ""), nil), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateImage uploads a new image. Empty optional fields are not sent.
func (c *Client) CreateImage(ctx context.Context, in artai.NewImage) (*artai.ImageResult, error) {
	f := newForm()
	f.file("image", &in.File)
	f.optional("title", in.Title)
	f.optional("description", in.Description)
	f.optional("status", in.Status)
	f.flag("is_public", in.IsPublic)
	f.id("category_id", in.CategoryID)

	var out artai.ImageResult
	if err := c.do(ctx, f.post("/images"), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateImage sends a multipart body when the patch carries a file and a
// JSON body otherwise. Either way only the fields present are sent. A
// multipart body cannot express null, so clearing the category together with
// a file fails without a request.
func (c *Client) UpdateImage(ctx context.Context, id int64, patch artai.ImagePatch) (*artai.ImageResult, error) {
	var r *request
	if patch.File != nil {
		if patch.CategoryID != nil && *patch.CategoryID == nil {
			return nil, artai.NewError(artai.KindValidation, "POST "+imagePath(id, ""), 0,
				"the category can only be cleared by an update without a file", nil)
		}
		f := newForm()
		f.file("image", patch.File)
		if patch.Title != nil {
			f.field("title", *patch.Title)
		}
		if patch.Description != nil {
			f.field("description", *patch.Description)
		}
		if patch.Status != nil {
			f.field("status", *patch.Status)
		}
		f.flag("is_public", patch.IsPublic)
		if patch.CategoryID != nil {
			f.id("category_id", *patch.CategoryID)
		}
		r = f.post(imagePath(id, ""))
	} else {
		body := map[string]any{}
		if patch.Title != nil {
			body["title"] = *patch.Title
		}
		if patch.Description != nil {
			body["description"] = *patch.Description
		}
		if patch.Status != nil {
			body["status"] = *patch.Status
		}
		if patch.IsPublic != nil {
			body["is_public"] = *patch.IsPublic
		}
		if patch.CategoryID != nil {
			body["category_id"] = *patch.CategoryID
		}
		r = postJSON(imagePath(id, ""), body)
	}

	var out artai.ImageResult
	if err := c.do(ctx, r, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DeleteImage(ctx context.Context, id int64) (*artai.Message, error) {
	var out artai.Message
	if err := c.do(ctx, post("/images-delete/"+strconv.FormatInt(id, 10)), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GetImageHistory(ctx context.Context, id int64) ([]artai.ImageHistory, error) {
	var out []artai.ImageHistory
	if err := c.do(ctx, get(imagePath(id, "/history"), nil), &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) AddImageHistory(ctx context.Context, id int64, in artai.HistoryEntry) (*artai.ImageHistory, error) {
	f := newForm()
	f.optional("action", in.Action)
	f.file("file", in.File)

	var out struct {
		History artai.ImageHistory `json:"history"`
	}
	if err := c.do(ctx, f.post(imagePath(id, "/history")), &out); err != nil {
		return nil, err
	}
	return &out.History, nil
}

func (c *Client) GetImageCategories(ctx context.Context, imageID int64) (*artai.ImageCategories, error) {
	var out artai.ImageCategories
	if err := c.do(ctx, get(imagePath(imageID, "/categories"), nil), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SetImageCategories replaces the image's whole category set.
func (c *Client) SetImageCategories(ctx context.Context, imageID int64, categoryIDs []int64) (*artai.ImageCategories, error) {
	body := struct {
		CategoryIDs []int64 `json:"category_ids"`
	}{artai.NormalizeCategorySet(categoryIDs)}

	var out artai.ImageCategories
	if err := c.do(ctx, postJSON(imagePath(imageID, "/categories"), body), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SetImageCategoriesCSV is SetImageCategories for a comma-separated id list
// such as "3, 5,8". It is sent in the server's string form; a malformed list
// sends nothing.
func (c *Client) SetImageCategoriesCSV(ctx context.Context, imageID int64, csv string) (*artai.ImageCategories, error) {
	ids, err := artai.ParseCategoryCSV(csv)
	if err != nil {
		return nil, artai.NewError(artai.KindValidation, "POST "+imagePath(imageID, "/categories"), 0, err.Error(), err)
	}
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	body := struct {
		Categories string `json:"categories"`
	}{strings.Join(parts, ",")}

	var out artai.ImageCategories
	if err := c.do(ctx, postJSON(imagePath(imageID, "/categories"), body), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) LikeImage(ctx context.Context, id int64) (*artai.Message, error) {
	var out artai.Message
	if err := c.do(ctx, post(imagePath(id, "/like")), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UnlikeImage(ctx context.Context, id int64) (*artai.Message, error) {
	var out artai.Message
	if err := c.do(ctx, post(imagePath(id, "/unlike")), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GetImageLikes(ctx context.Context, id int64) (*artai.LikeInfo, error) {
	var out artai.LikeInfo
	if err := c.do(ctx, get(imagePath(id, "/likes"), nil), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Generate asks the server to produce an image from a prompt and optional
// reference or source images.
func (c *Client) Generate(ctx context.Context, in artai.GenerateRequest) (*artai.ImageResult, error) {
	f := newForm()
	f.optional("prompt", in.Prompt)
	f.file("reference", in.Reference)
	f.file("image", in.Image)
	f.optional("title", in.Title)
	f.flag("is_public", in.IsPublic)
	f.id("category_id", in.CategoryID)

	var out artai.ImageResult
	if err := c.do(ctx, f.post("/generate"), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// EditImage replaces an image's content with an edited version.
func (c *Client) EditImage(ctx context.Context, id int64, file artai.Upload) (*artai.ImageResult, error) {
	f := newForm()
	f.file("image", &file)

	var out artai.ImageResult
	if err := c.do(ctx, f.post("/edit/"+strconv.FormatInt(id, 10)), &out); err != nil {
		return nil, err
	}
	return &out, nil
}
