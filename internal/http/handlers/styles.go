package handlers

import (
	"net/http"

	"stylegen/internal/domain"
)

type styleEntry struct {
	ID          string      `json:"id"`
	Name        string      `json:"name,omitempty"`
	Mode        domain.Mode `json:"mode"`
	Path        string      `json:"path"`
	UsesColors  bool        `json:"uses_colors"`
	FixedPrompt bool        `json:"fixed_prompt"`
	Upload      string      `json:"upload_field,omitempty"`
}

// ListStyles describes every configured generation route.
func (a *App) ListStyles(w http.ResponseWriter, r *http.Request) {
	list := a.Routes.Routes()
	out := make([]styleEntry, 0, len(list))
	for _, route := range list {
		entry := styleEntry{ID: route.StyleID, Mode: route.Mode, Path: route.Path(), Upload: route.Upload}
		if a.Styles != nil {
			if def, err := a.Styles.Lookup(route.StyleID); err == nil {
				entry.Name = def.Name
				entry.UsesColors = def.UsesColors
				entry.FixedPrompt = def.HasFixedPrompt()
			}
		}
		out = append(out, entry)
	}
	a.json(w, http.StatusOK, map[string]any{"styles": out})
}
