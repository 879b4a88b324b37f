package api

import (
	"context"
	"strconv"

	"artai-go/internal/artai"
)

func (c *Client) GetCategories(ctx context.Context) ([]artai.Category, error) {
	var out []artai.Category
	if err := c.do(ctx, get("/categories", nil), &out); err != nil {
		return nil, err
	}
	return out, nil
}

type categoryBody struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

func (c *Client) CreateCategory(ctx context.Context, name, description string) (*artai.Category, error) {
	var out struct {
		Category artai.Category `json:"category"`
	}
	if err := c.do(ctx, postJSON("/categories", categoryBody{Name: name, Description: description}), &out); err != nil {
		return nil, err
	}
	return &out.Category, nil
}

func (c *Client) GetTags(ctx context.Context) ([]artai.Tag, error) {
	var out []artai.Tag
	if err := c.do(ctx, get("/tags", nil), &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) CreateTag(ctx context.Context, name string) (*artai.Tag, error) {
	body := struct {
		Name string `json:"name"`
	}{name}
	var out struct {
		Tag artai.Tag `json:"tag"`
	}
	if err := c.do(ctx, postJSON("/tags", body), &out); err != nil {
		return nil, err
	}
	return &out.Tag, nil
}

func (c *Client) ListReferenceImages(ctx context.Context, q artai.PageQuery) (*artai.Paginated[artai.ReferenceImage], error) {
	var out artai.Paginated[artai.ReferenceImage]
	if err := c.do(ctx, get("/reference-images", pageQuery(q.UserID, q.Page)), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) CreateReferenceImage(ctx context.Context, file artai.Upload, description string) (*artai.ReferenceImage, error) {
	f := newForm()
	f.file("image", &file)
	f.optional("description", description)

	var out struct {
		Reference artai.ReferenceImage `json:"reference"`
	}
	if err := c.do(ctx, f.post("/reference-images"), &out); err != nil {
		return nil, err
	}
	return &out.Reference, nil
}

func (c *Client) ListSessions(ctx context.Context, q artai.PageQuery) (*artai.Paginated[artai.SessionRecord], error) {
	var out artai.Paginated[artai.SessionRecord]
	if err := c.do(ctx, get("/sessions", pageQuery(q.UserID, q.Page)), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DeleteSession(ctx context.Context, id int64) (*artai.Message, error) {
	var out artai.Message
	if err := c.do(ctx, post("/sessions/"+strconv.FormatInt(id, 10)), &out); err != nil {
		return nil, err
	}
	return &out, nil
}
