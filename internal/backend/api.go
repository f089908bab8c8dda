package backend

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	json "github.com/goccy/go-json"
)

type User struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Email  string `json:"email,omitempty"`
	Avatar string `json:"avatar,omitempty"`
}

type AuthResult struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type Registration struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Phone    string `json:"phone,omitempty"`
}

type LikeResult struct {
	LikesCount int  `json:"likes_count"`
	Liked      bool `json:"is_liked_by_me"`
}

type SaveResult struct {
	Saved bool `json:"is_saved_by_me"`
}

type HideResult struct {
	Hidden bool `json:"is_hidden"`
}

type FollowResult struct {
	Following bool `json:"is_followed_by_me"`
	Followers int  `json:"followers_count"`
}

type NewPost struct {
	Caption  string `json:"caption"`
	MediaKey string `json:"media_key,omitempty"`
}

type NewComment struct {
	Body string `json:"body"`
}

type NewRecipe struct {
	Title        string   `json:"title"`
	Description  string   `json:"description,omitempty"`
	Ingredients  []string `json:"ingredients"`
	Steps        []string `json:"steps"`
	PrepMinutes  int      `json:"prep_minutes,omitempty"`
	CookMinutes  int      `json:"cook_minutes,omitempty"`
	Servings     int      `json:"servings,omitempty"`
	CoverKey     string   `json:"cover_key,omitempty"`
	VideoKey     string   `json:"video_key,omitempty"`
	CuisineTypes []string `json:"cuisine_types,omitempty"`
}

type Review struct {
	ID        string   `json:"id"`
	Author    User     `json:"author"`
	Comment   string   `json:"comment"`
	Rating    *float64 `json:"rating,omitempty"`
	CreatedAt string   `json:"created_at"`
}

type NewReview struct {
	Comment string `json:"comment"`
	Rating  *int   `json:"rating,omitempty"`
}

type Restaurant struct {
	Name        string `json:"name"`
	CuisineType string `json:"cuisine_type"`
	Description string `json:"description,omitempty"`
	Email       string `json:"email"`
	Phone       string `json:"phone"`
	Website     string `json:"website,omitempty"`
}

type Branch struct {
	Name         string   `json:"name"`
	Address      string   `json:"address"`
	City         string   `json:"city"`
	Phone        string   `json:"phone,omitempty"`
	Latitude     *float64 `json:"latitude,omitempty"`
	Longitude    *float64 `json:"longitude,omitempty"`
	OpeningHours string   `json:"opening_hours,omitempty"`
}

type Documents struct {
	LicenseNumber string `json:"license_number"`
	TaxID         string `json:"tax_id"`
	LicenseKey    string `json:"license_key,omitempty"`
}

type RestaurantRegistration struct {
	Restaurant Restaurant `json:"restaurant"`
	Branches   []Branch   `json:"branches"`
	Documents  Documents  `json:"documents"`
}

func (c *Client) Login(ctx context.Context, creds Credentials) (*AuthResult, error) {
	env, err := c.do(ctx, "login", http.MethodPost, "/auth/login", "", creds)
	if err != nil {
		return nil, err
	}
	var out AuthResult
	if err := decodeData("login", env, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Register(ctx context.Context, reg Registration) (*AuthResult, error) {
	env, err := c.do(ctx, "register", http.MethodPost, "/auth/register", "", reg)
	if err != nil {
		return nil, err
	}
	var out AuthResult
	if err := decodeData("register", env, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Logout(ctx context.Context, token string) error {
	_, err := c.do(ctx, "logout", http.MethodPost, "/auth/logout", token, nil)
	return err
}

func (c *Client) Posts(ctx context.Context, token string, page int) (json.RawMessage, error) {
	return c.raw(ctx, "list_posts", http.MethodGet, "/posts?"+pageQuery(page, ""), token, nil)
}

func (c *Client) CreatePost(ctx context.Context, token string, post NewPost) (json.RawMessage, error) {
	return c.raw(ctx, "create_post", http.MethodPost, "/posts", token, post)
}

func (c *Client) TogglePostLike(ctx context.Context, token, postID string) (LikeResult, error) {
	var out LikeResult
	err := c.mutate(ctx, "toggle_post_like", entityPath("/posts", postID, "like"), token, &out)
	return out, err
}

func (c *Client) Comments(ctx context.Context, token, postID string) (json.RawMessage, error) {
	return c.raw(ctx, "list_comments", http.MethodGet, entityPath("/posts", postID, "comments"), token, nil)
}

func (c *Client) AddComment(ctx context.Context, token, postID string, comment NewComment) (json.RawMessage, error) {
	return c.raw(ctx, "add_comment", http.MethodPost, entityPath("/posts", postID, "comments"), token, comment)
}

func (c *Client) ToggleFollow(ctx context.Context, token, userID string) (FollowResult, error) {
	var out FollowResult
	err := c.mutate(ctx, "toggle_follow", entityPath("/users", userID, "follow"), token, &out)
	return out, err
}

func (c *Client) Recipes(ctx context.Context, token string, page int, query string) (json.RawMessage, error) {
	return c.raw(ctx, "list_recipes", http.MethodGet, "/recipes?"+pageQuery(page, query), token, nil)
}

func (c *Client) Recipe(ctx context.Context, token, recipeID string) (json.RawMessage, error) {
	return c.raw(ctx, "get_recipe", http.MethodGet, "/recipes/"+url.PathEscape(recipeID), token, nil)
}

func (c *Client) CreateRecipe(ctx context.Context, token string, recipe NewRecipe) (json.RawMessage, error) {
	return c.raw(ctx, "create_recipe", http.MethodPost, "/recipes", token, recipe)
}

func (c *Client) ToggleRecipeLike(ctx context.Context, token, recipeID string) (LikeResult, error) {
	var out LikeResult
	err := c.mutate(ctx, "toggle_recipe_like", entityPath("/recipes", recipeID, "like"), token, &out)
	return out, err
}

func (c *Client) ToggleRecipeSave(ctx context.Context, token, recipeID string) (SaveResult, error) {
	var out SaveResult
	err := c.mutate(ctx, "toggle_recipe_save", entityPath("/recipes", recipeID, "save"), token, &out)
	return out, err
}

func (c *Client) ToggleRecipeHide(ctx context.Context, token, recipeID string) (HideResult, error) {
	var out HideResult
	err := c.mutate(ctx, "toggle_recipe_hide", entityPath("/recipes", recipeID, "hide"), token, &out)
	return out, err
}

func (c *Client) ShareLinks(ctx context.Context, token, recipeID string) (map[string]string, error) {
	env, err := c.do(ctx, "share_links", http.MethodGet, entityPath("/recipes", recipeID, "share-links"), token, nil)
	if err != nil {
		return nil, err
	}
	var out struct {
		Links map[string]string `json:"links"`
	}
	if err := decodeData("share_links", env, &out); err != nil {
		return nil, err
	}
	return out.Links, nil
}

func (c *Client) Reviews(ctx context.Context, token, recipeID string) ([]Review, error) {
	env, err := c.do(ctx, "list_reviews", http.MethodGet, entityPath("/recipes", recipeID, "reviews"), token, nil)
	if err != nil {
		return nil, err
	}
	var out []Review
	if err := decodeData("list_reviews", env, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) AddReview(ctx context.Context, token, recipeID string, review NewReview) (*Review, error) {
	env, err := c.do(ctx, "add_review", http.MethodPost, entityPath("/recipes", recipeID, "reviews"), token, review)
	if err != nil {
		return nil, err
	}
	var out Review
	if err := decodeData("add_review", env, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) RegisterRestaurant(ctx context.Context, token string, reg RestaurantRegistration) (string, error) {
	env, err := c.do(ctx, "register_restaurant", http.MethodPost, "/restaurants", token, reg)
	if err != nil {
		return "", err
	}
	var out struct {
		ID string `json:"id"`
	}
	if err := decodeData("register_restaurant", env, &out); err != nil {
		return "", err
	}
	return out.ID, nil
}

func (c *Client) mutate(ctx context.Context, op, path, token string, out any) error {
	env, err := c.do(ctx, op, http.MethodPost, path, token, nil)
	if err != nil {
		return err
	}
	return decodeData(op, env, out)
}

func (c *Client) raw(ctx context.Context, op, method, path, token string, body any) (json.RawMessage, error) {
	env, err := c.do(ctx, op, method, path, token, body)
	if err != nil {
		return nil, err
	}
	if len(env.Data) == 0 {
		return json.RawMessage("null"), nil
	}
	return env.Data, nil
}

func entityPath(collection, id, action string) string {
	return fmt.Sprintf("%s/%s/%s", collection, url.PathEscape(id), action)
}

func pageQuery(page int, query string) string {
	v := url.Values{}
	if page > 0 {
		v.Set("page", strconv.Itoa(page))
	}
	if query != "" {
		v.Set("q", query)
	}
	return v.Encode()
}
