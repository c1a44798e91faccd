package handlers

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/Snoopiam/mqt/internal/compose"
	"github.com/Snoopiam/mqt/internal/pipeline"
	"github.com/Snoopiam/mqt/internal/session"
	"github.com/Snoopiam/mqt/internal/style"
	"github.com/Snoopiam/mqt/internal/telegram"
	"github.com/Snoopiam/mqt/internal/tier"
	"github.com/Snoopiam/mqt/internal/vision"
)

const wizardCallbackPrefix = "mqt"

func callbackData(userID int64, action string, args ...string) string {
	parts := append([]string{wizardCallbackPrefix, strconv.FormatInt(userID, 10), action}, args...)
	return strings.Join(parts, ":")
}

func (h *Handler) sendCategoryKeyboard(chatID, userID int64) error {
	categories := h.styles.Categories()
	if len(categories) == 0 {
		return h.tg.SendText(chatID, "No styles saved yet. Use /extract to create one from a reference photo.")
	}

	names := make([]string, 0, len(categories))
	for name := range categories {
		names = append(names, name)
	}
	sort.Strings(names)

	rows := make([][]telegram.Button, 0, len(names)+1)
	for _, name := range names {
		label := fmt.Sprintf("%s (%d)", name, len(categories[name].Styles))
		rows = append(rows, []telegram.Button{{Label: label, Data: callbackData(userID, "cat", name)}})
	}
	rows = append(rows, []telegram.Button{{Label: "No style (neutral render)", Data: callbackData(userID, "style", "")}})

	return h.tg.SendKeyboard(chatID, "🎨 Pick a style category:", rows)
}

func (h *Handler) sendTierKeyboard(chatID, userID int64) error {
	rows := make([][]telegram.Button, 0, 5)
	for _, cfg := range tier.All() {
		label := fmt.Sprintf("%s — %s", strings.ToUpper(string(cfg.Tier)), cfg.Quality)
		if cfg.DailyLimit > 0 {
			label += fmt.Sprintf(" (%d/day)", cfg.DailyLimit)
		}
		rows = append(rows, []telegram.Button{{Label: label, Data: callbackData(userID, "tier", string(cfg.Tier))}})
	}
	return h.tg.SendKeyboard(chatID, "⚙️ Pick a quality tier:", rows)
}

func (h *Handler) handleCallback(ctx context.Context, q *tgbotapi.CallbackQuery) error {
	if q == nil || q.Message == nil {
		return nil
	}
	data := strings.TrimSpace(q.Data)
	if !strings.HasPrefix(data, wizardCallbackPrefix+":") {
		return nil
	}

	parts := strings.SplitN(data, ":", 4)
	if len(parts) < 3 {
		return nil
	}

	ownerID, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return nil
	}

	if ownerID != q.From.ID {
		h.tg.AnswerCallback(q.ID, "This menu is not for you.")
		return nil
	}

	action := parts[2]
	arg := ""
	if len(parts) == 4 {
		arg = parts[3]
	}
	chatID := q.Message.Chat.ID
	msgID := q.Message.MessageID
	userID := q.From.ID
	username := q.From.UserName

	switch action {
	case "cat":
		h.tg.AnswerCallback(q.ID, "")
		return h.showCategoryStyles(chatID, msgID, userID, arg)

	case "style":
		return h.selectStyle(chatID, msgID, userID, username, q.ID, arg)

	case "tier":
		if !tier.Known(arg) {
			h.tg.AnswerCallback(q.ID, "Unknown tier")
			return nil
		}
		cfg := tier.Resolve(arg)
		h.sessions.Update(userID, username, func(s *session.Session) {
			s.TierName = arg
		})
		h.tg.AnswerCallback(q.ID, "Tier set")
		text := fmt.Sprintf("⚙️ Tier set to %s.\nQuality: %s\nGeneration model: %s", strings.ToUpper(arg), cfg.Quality, cfg.GenerationModel)
		if cfg.DailyLimit > 0 {
			text += fmt.Sprintf("\nDaily limit: %d images (%d left today)", cfg.DailyLimit, h.orch.Remaining(arg))
		}
		return h.tg.EditKeyboard(chatID, msgID, text, nil)

	case "refine":
		h.tg.AnswerCallback(q.ID, "Refining...")
		h.handleRefine(ctx, chatID, userID, username)
		return nil

	default:
		h.tg.AnswerCallback(q.ID, "")
		return nil
	}
}

func (h *Handler) showCategoryStyles(chatID int64, msgID int, userID int64, category string) error {
	styles := h.styles.ByCategory(category)
	if len(styles) == 0 {
		return h.tg.EditKeyboard(chatID, msgID, "No styles in this category.", nil)
	}

	rows := make([][]telegram.Button, 0, len(styles))
	for _, d := range styles {
		rows = append(rows, []telegram.Button{{Label: d.Name, Data: callbackData(userID, "style", d.ID)}})
	}
	return h.tg.EditKeyboard(chatID, msgID, fmt.Sprintf("🎨 %s — pick a style:", category), rows)
}

func (h *Handler) selectStyle(chatID int64, msgID int, userID int64, username, callbackID, styleID string) error {
	var text string
	if styleID == "" {
		text = "✅ Neutral render selected. No style overlay will be applied."
	} else {
		d, ok := h.styles.Get(styleID)
		if !ok {
			h.tg.AnswerCallback(callbackID, "Style not found")
			return nil
		}
		text = fmt.Sprintf("✅ Style selected: %s\n%s", d.Name, d.Description)
	}

	h.sessions.Update(userID, username, func(s *session.Session) {
		s.StyleID = styleID
		s.ReferenceImage = nil
		s.ReferenceMime = ""
		s.RefineAttempts = 0
		s.LastComparison = nil
		s.Mode = session.ModeAwaitFloorPlan
	})

	h.tg.AnswerCallback(callbackID, "Style set")
	return h.tg.EditKeyboard(chatID, msgID, text+"\n\n📐 Now send the floor plan photo.", nil)
}

// runRender drives one generate + compare pass and reports the result
// with a refine button when another attempt is still allowed.
func (h *Handler) runRender(ctx context.Context, chatID, userID int64, username string, sess session.Session, plan vision.ImageInput, userPrompt string, refinement *compose.Refinement) {
	h.tg.SendUploadingPhoto(chatID)

	descriptor := h.resolveStyle(sess.StyleID)
	cfg := h.orch.ResolveTier(sess.TierName)

	req := pipeline.Request{
		Image:        plan,
		UserPrompt:   userPrompt,
		Style:        descriptor,
		TierOverride: sess.TierName,
		Refinement:   refinement,
	}

	result, err := h.orch.Generate(ctx, req)
	if err != nil {
		h.logger.Error("render failed", "err", err, "user_id", userID, "tier", cfg.Tier)
		_ = h.tg.SendText(chatID, renderErrorMessage(err, cfg))
		return
	}

	var comparison *pipeline.ComparisonResult
	if descriptor != nil {
		var reference *vision.ImageInput
		if len(sess.ReferenceImage) > 0 {
			reference = &vision.ImageInput{Data: sess.ReferenceImage, MimeType: sess.ReferenceMime}
		}
		comparison = h.comp.Compare(ctx,
			descriptor,
			vision.ImageInput{Data: result.Image, MimeType: result.MimeType},
			reference,
			string(cfg.Tier),
		)
	}

	h.sessions.Update(userID, username, func(s *session.Session) {
		s.LastImage = result.Image
		s.LastMime = result.MimeType
		// A perfect score clears the refinement feedback; there is
		// nothing left to correct.
		if comparison != nil && comparison.Score >= 100 {
			s.LastComparison = nil
		} else {
			s.LastComparison = comparison
		}
		if refinement != nil {
			s.RefineAttempts++
		} else {
			s.RefineAttempts = 0
		}
	})

	caption := renderCaption(descriptor, cfg, result.Metadata, comparison, refinement)

	var rows [][]telegram.Button
	if comparison != nil && comparison.Score > 0 && comparison.Score < 100 && h.sessions.CanRefine(userID) {
		rows = [][]telegram.Button{{
			{Label: fmt.Sprintf("🔄 Refine (score %d/100)", comparison.Score), Data: callbackData(userID, "refine")},
		}}
	}

	if err := h.tg.SendPhoto(chatID, result.Image, result.MimeType, caption, rows); err != nil {
		h.logger.Error("result send failed", "err", err, "user_id", userID)
	}
}

func (h *Handler) handleRefine(ctx context.Context, chatID, userID int64, username string) {
	sess := h.sessions.Snapshot(userID, username)
	if sess.FloorPlanFileID == "" || sess.LastComparison == nil {
		_ = h.tg.SendText(chatID, "Nothing to refine yet. Send a floor plan first.")
		return
	}
	if !h.sessions.CanRefine(userID) {
		_ = h.tg.SendText(chatID, fmt.Sprintf("Refinement limit reached (%d attempts). Send the plan again to start over.", h.sessions.MaxRefineAttempts()))
		return
	}

	h.tg.SendTyping(chatID)
	planData, planMime, err := h.tg.DownloadFile(ctx, sess.FloorPlanFileID)
	if err != nil {
		h.logger.Error("floor plan re-download failed", "err", err)
		_ = h.tg.SendText(chatID, "❌ Could not reload the floor plan. Send it again.")
		return
	}

	refinement := pipeline.RefinementFromResult(sess.RefineAttempts+1, sess.LastComparison)
	h.runRender(ctx, chatID, userID, username, sess,
		vision.ImageInput{Data: planData, MimeType: planMime}, "", refinement)
}

func (h *Handler) resolveStyle(styleID string) *style.Descriptor {
	if styleID == "" {
		return nil
	}
	d, ok := h.styles.Get(styleID)
	if !ok {
		return nil
	}
	return d
}

func renderCaption(d *style.Descriptor, cfg tier.Config, meta pipeline.Metadata, comparison *pipeline.ComparisonResult, refinement *compose.Refinement) string {
	var b strings.Builder
	if refinement != nil {
		fmt.Fprintf(&b, "🔄 Refinement attempt %d\n", refinement.Attempt)
	} else {
		b.WriteString("✨ Render complete\n")
	}
	if d != nil {
		fmt.Fprintf(&b, "Style: %s\n", d.Name)
	}
	fmt.Fprintf(&b, "Tier: %s · %s · %s", strings.ToUpper(string(cfg.Tier)), meta.GenerationModel, meta.ProcessingTime)
	if comparison != nil {
		if comparison.Score > 0 {
			fmt.Fprintf(&b, "\nStyle match: %d/100", comparison.Score)
			if len(comparison.Differences) > 0 {
				fmt.Fprintf(&b, "\nTop issue: %s", comparison.Differences[0])
			}
		} else if comparison.Analysis != "" {
			b.WriteString("\nStyle match: unavailable")
		}
	}
	return b.String()
}
