package live

import (
	"context"
	"errors"
	"log/slog"

	"github.com/dishly/dishly/internal/backend"
	"github.com/dishly/dishly/internal/interaction"
	"github.com/dishly/dishly/internal/metrics"
)

// Backend is the slice of the platform API that optimistic actions call.
type Backend interface {
	TogglePostLike(ctx context.Context, token, postID string) (backend.LikeResult, error)
	ToggleRecipeLike(ctx context.Context, token, recipeID string) (backend.LikeResult, error)
	ToggleRecipeSave(ctx context.Context, token, recipeID string) (backend.SaveResult, error)
	ToggleRecipeHide(ctx context.Context, token, recipeID string) (backend.HideResult, error)
	ToggleFollow(ctx context.Context, token, userID string) (backend.FollowResult, error)
}

// card is one mounted post or recipe with its action controllers. Save and
// hide exist only on recipe cards.
type card struct {
	id     string
	kind   string
	entity string
	author string

	like   *interaction.Controller[backend.LikeResult]
	save   *interaction.Controller[bool]
	hide   *interaction.Controller[bool]
	follow *interaction.Controller[backend.FollowResult]
}

func (c *card) controllers() []interface{ Close() } {
	list := []interface{ Close() }{c.like, c.follow}
	if c.save != nil {
		list = append(list, c.save, c.hide)
	}
	return list
}

func (c *card) state() CardState {
	st := CardState{
		Type:      TypeCardState,
		Card:      c.id,
		Liked:     c.like.Value().Liked,
		Likes:     c.like.Value().LikesCount,
		Following: c.follow.Value().Following,
		Followers: c.follow.Value().Followers,
		Pending:   []interaction.Kind{},
	}
	if c.like.InFlight() {
		st.Pending = append(st.Pending, interaction.Like)
	}
	if c.save != nil {
		st.Saved = c.save.Value()
		st.Hidden = c.hide.Value()
		if c.save.InFlight() {
			st.Pending = append(st.Pending, interaction.Save)
		}
		if c.hide.InFlight() {
			st.Pending = append(st.Pending, interaction.Hide)
		}
	}
	if c.follow.InFlight() {
		st.Pending = append(st.Pending, interaction.Follow)
	}
	return st
}

func toggleLike(prev backend.LikeResult) backend.LikeResult {
	if prev.Liked {
		return backend.LikeResult{Liked: false, LikesCount: max(prev.LikesCount-1, 0)}
	}
	return backend.LikeResult{Liked: true, LikesCount: prev.LikesCount + 1}
}

func toggleFollow(prev backend.FollowResult) backend.FollowResult {
	if prev.Following {
		return backend.FollowResult{Following: false, Followers: max(prev.Followers-1, 0)}
	}
	return backend.FollowResult{Following: true, Followers: prev.Followers + 1}
}

func toggle(prev bool) bool { return !prev }

func (s *Session) mountCard(msg Inbound) {
	if msg.Card == "" {
		s.sendError("card id is required")
		return
	}
	if msg.Kind != CardPost && msg.Kind != CardRecipe {
		s.sendError("card kind must be post or recipe")
		return
	}
	if _, ok := s.cards[msg.Card]; ok {
		s.unmountCard(msg.Card)
	}

	c := &card{id: msg.Card, kind: msg.Kind, entity: msg.Entity, author: msg.Author}
	push := func() {
		if s.cards[c.id] == c {
			s.enqueue(c.state())
		}
	}

	likeMutation := func(ctx context.Context, id, token string) (backend.LikeResult, error) {
		return s.backend.TogglePostLike(ctx, token, id)
	}
	if c.kind == CardRecipe {
		likeMutation = func(ctx context.Context, id, token string) (backend.LikeResult, error) {
			return s.backend.ToggleRecipeLike(ctx, token, id)
		}
	}
	c.like = interaction.NewController(interaction.Config[backend.LikeResult]{
		Kind:      interaction.Like,
		Initial:   backend.LikeResult{Liked: msg.Liked, LikesCount: msg.Likes},
		Mutate:    likeMutation,
		Notifier:  s.notifier,
		Dispatch:  s.post,
		OnChange:  func(backend.LikeResult, bool) { push() },
		OnSettled: func(v backend.LikeResult) { s.syncLike(c, v) },
		OnOutcome: s.recordOutcome,
	})

	c.follow = interaction.NewController(interaction.Config[backend.FollowResult]{
		Kind:    interaction.Follow,
		Initial: backend.FollowResult{Following: msg.Following, Followers: msg.Followers},
		Mutate: func(ctx context.Context, id, token string) (backend.FollowResult, error) {
			return s.backend.ToggleFollow(ctx, token, id)
		},
		Notifier:  s.notifier,
		Dispatch:  s.post,
		OnChange:  func(backend.FollowResult, bool) { push() },
		OnSettled: func(v backend.FollowResult) { s.syncFollow(c, v) },
		OnOutcome: s.recordOutcome,
	})

	if c.kind == CardRecipe {
		c.save = interaction.NewController(interaction.Config[bool]{
			Kind:    interaction.Save,
			Initial: msg.Saved,
			Mutate: func(ctx context.Context, id, token string) (bool, error) {
				res, err := s.backend.ToggleRecipeSave(ctx, token, id)
				return res.Saved, err
			},
			Notifier: s.notifier,
			Dispatch: s.post,
			OnChange: func(bool, bool) { push() },
			OnSettled: func(saved bool) {
				if saved {
					s.notifier.Success("Recipe saved")
				}
			},
			OnOutcome: s.recordOutcome,
		})
		c.hide = interaction.NewController(interaction.Config[bool]{
			Kind:    interaction.Hide,
			Initial: msg.Hidden,
			Mutate: func(ctx context.Context, id, token string) (bool, error) {
				res, err := s.backend.ToggleRecipeHide(ctx, token, id)
				return res.Hidden, err
			},
			Notifier:  s.notifier,
			Dispatch:  s.post,
			OnChange:  func(bool, bool) { push() },
			OnOutcome: s.recordOutcome,
		})
	}

	s.cards[c.id] = c
	push()
}

func (s *Session) unmountCard(id string) {
	c, ok := s.cards[id]
	if !ok {
		return
	}
	for _, ctrl := range c.controllers() {
		ctrl.Close()
	}
	delete(s.cards, id)
}

func (s *Session) action(msg Inbound) {
	c, ok := s.cards[msg.Card]
	if !ok {
		s.sendError("unknown card")
		return
	}

	var err error
	switch msg.Action {
	case interaction.Like:
		err = c.like.Invoke(s.ctx, c.entity, s.token, toggleLike)
	case interaction.Follow:
		err = c.follow.Invoke(s.ctx, c.author, s.token, toggleFollow)
	case interaction.Save, interaction.Hide:
		if c.save == nil {
			s.sendError(string(msg.Action) + " is not available on " + c.kind + " cards")
			return
		}
		ctrl := c.save
		if msg.Action == interaction.Hide {
			ctrl = c.hide
		}
		err = ctrl.Invoke(s.ctx, c.entity, s.token, toggle)
	default:
		s.sendError("unknown action")
		return
	}

	if errors.Is(err, interaction.ErrInFlight) {
		slog.Debug("live: action dropped while in flight", "session", s.id, "card", c.id, "action", msg.Action)
	}
}

// syncLike pushes a confirmed like to other cards showing the same entity.
func (s *Session) syncLike(from *card, v backend.LikeResult) {
	for _, c := range s.cards {
		if c != from && c.kind == from.kind && c.entity == from.entity {
			c.like.Reset(v)
		}
	}
}

// syncFollow pushes a confirmed follow to every card by the same author.
func (s *Session) syncFollow(from *card, v backend.FollowResult) {
	for _, c := range s.cards {
		if c != from && c.author == from.author {
			c.follow.Reset(v)
		}
	}
}

func (s *Session) recordOutcome(kind interaction.Kind, err error) {
	outcome := "confirmed"
	if err != nil {
		outcome = "rolled_back"
	}
	metrics.OptimisticSettlements.WithLabelValues(string(kind), outcome).Inc()

	var remote *interaction.RemoteError
	if errors.As(err, &remote) && remote.Status == 401 && s.monitor != nil {
		go s.monitor.Trigger()
	}
}
