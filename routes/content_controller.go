package routes

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/render"

	"github.com/mbolis/workation/app"
	"github.com/mbolis/workation/httpx"
	"github.com/mbolis/workation/log"
	"github.com/mbolis/workation/model"
	"github.com/mbolis/workation/notify"
	"github.com/mbolis/workation/store"
)

func GetGallery(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		g, err := store.LoadGallery(r.Context(), app.Stores.Content)
		if err != nil {
			httpx.LogInternalError(w, "db.get_gallery", err)
			return
		}
		render.JSON(w, r, g)
	}
}

func PutGallery(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var g model.Gallery
		if err := decodeValid(r, &g); err != nil {
			httpx.LogStatusMsg(w, http.StatusBadRequest, log.DebugLevel, "put_gallery.decode", "%s", invalidMessage(err))
			return
		}
		if g.Images == nil {
			g.Images = []string{}
		}
		if err := app.Stores.Content.Put(r.Context(), model.DocGallery, g); err != nil {
			httpx.LogInternalError(w, "db.put_gallery", err)
			return
		}
		render.JSON(w, r, g)
	}
}

type moveRequest struct {
	From int `json:"from" validate:"min=0"`
	To   int `json:"to" validate:"min=0"`
}

// reorder decodes a moveRequest and applies it with move, writing the
// error response itself. ok is false when a response was written.
func reorder(w http.ResponseWriter, r *http.Request, code string, move func(from, to int) error) (ok bool) {
	var req moveRequest
	if err := decodeValid(r, &req); err != nil {
		httpx.LogStatusMsg(w, http.StatusBadRequest, log.DebugLevel, code+".decode", "%s", invalidMessage(err))
		return false
	}
	err := move(req.From, req.To)
	if errors.Is(err, model.ErrIndexOutOfRange) {
		httpx.LogStatusMsg(w, http.StatusBadRequest, log.DebugLevel, code, "cannot move item %d to %d", req.From, req.To)
		return false
	}
	if err != nil {
		httpx.LogInternalError(w, "db."+code, err)
		return false
	}
	return true
}

// ReorderGallery moves one image and saves the whole list again.
func ReorderGallery(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var g model.Gallery
		ok := reorder(w, r, "reorder_gallery", func(from, to int) (err error) {
			if g, err = store.LoadGallery(r.Context(), app.Stores.Content); err != nil {
				return err
			}
			if g.Images, err = model.MoveItem(g.Images, from, to); err != nil {
				return err
			}
			return app.Stores.Content.Put(r.Context(), model.DocGallery, g)
		})
		if ok {
			render.JSON(w, r, g)
		}
	}
}

// workLifeView is what the admin edits: the stored document plus its cards
// in display order.
type workLifeView struct {
	ItemOrder []string                      `json:"itemOrder"`
	Items     map[string]model.WorkLifeItem `json:"items"`
	Ordered   []model.WorkLifeItem          `json:"ordered"`
}

func viewOf(s model.WorkLifeSection) workLifeView {
	order := s.ItemOrder
	if order == nil {
		order = []string{}
	}
	return workLifeView{ItemOrder: order, Items: s.Items, Ordered: s.Ordered()}
}

func GetWorkLife(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, err := store.LoadWorkLife(r.Context(), app.Stores.Content)
		if err != nil {
			httpx.LogInternalError(w, "db.get_work_life", err)
			return
		}
		render.JSON(w, r, viewOf(s))
	}
}

type workLifeRequest struct {
	ItemOrder []string                      `json:"itemOrder" validate:"dive,required"`
	Items     map[string]model.WorkLifeItem `json:"items" validate:"dive"`
}

// PutWorkLife overwrites the cards. Every key of itemOrder must name a card.
func PutWorkLife(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req workLifeRequest
		if err := decodeValid(r, &req); err != nil {
			httpx.LogStatusMsg(w, http.StatusBadRequest, log.DebugLevel, "put_work_life.decode", "%s", invalidMessage(err))
			return
		}
		for _, key := range req.ItemOrder {
			if _, ok := req.Items[key]; !ok {
				httpx.LogStatusMsg(w, http.StatusBadRequest, log.DebugLevel, "put_work_life.order", "unknown item %q in itemOrder", key)
				return
			}
		}

		s := model.WorkLifeSection{ItemOrder: req.ItemOrder, Items: req.Items}
		if s.Items == nil {
			s.Items = map[string]model.WorkLifeItem{}
		}
		if err := app.Stores.Content.Put(r.Context(), model.DocWorkLife, s); err != nil {
			httpx.LogInternalError(w, "db.put_work_life", err)
			return
		}
		render.JSON(w, r, viewOf(s))
	}
}

func ReorderWorkLife(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var s model.WorkLifeSection
		ok := reorder(w, r, "reorder_work_life", func(from, to int) (err error) {
			if s, err = store.LoadWorkLife(r.Context(), app.Stores.Content); err != nil {
				return err
			}
			if s.ItemOrder, err = model.MoveItem(s.ItemOrder, from, to); err != nil {
				return err
			}
			return app.Stores.Content.Put(r.Context(), model.DocWorkLife, s)
		})
		if ok {
			render.JSON(w, r, viewOf(s))
		}
	}
}

type emailTemplateView struct {
	Confirmation model.EmailTemplate `json:"confirmation"`
	// IsDefault is set while no template was saved.
	IsDefault bool `json:"isDefault"`
}

func loadTemplates(ctx context.Context, cs store.ContentStore) (emailTemplateView, error) {
	tpls, found, err := store.LoadEmailTemplates(ctx, cs)
	if err != nil {
		return emailTemplateView{}, err
	}
	if !found {
		return emailTemplateView{Confirmation: notify.DefaultConfirmation, IsDefault: true}, nil
	}
	return emailTemplateView{Confirmation: tpls.Confirmation}, nil
}

func GetEmailTemplate(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		view, err := loadTemplates(r.Context(), app.Stores.Content)
		if err != nil {
			httpx.LogInternalError(w, "db.get_email_template", err)
			return
		}
		render.JSON(w, r, view)
	}
}

func PutEmailTemplate(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var tpls model.EmailTemplates
		if err := decodeValid(r, &tpls); err != nil {
			httpx.LogStatusMsg(w, http.StatusBadRequest, log.DebugLevel, "put_email_template.decode", "%s", invalidMessage(err))
			return
		}
		if err := app.Stores.Content.Put(r.Context(), model.DocEmailTemplates, tpls); err != nil {
			httpx.LogInternalError(w, "db.put_email_template", err)
			return
		}
		render.JSON(w, r, emailTemplateView{Confirmation: tpls.Confirmation})
	}
}
