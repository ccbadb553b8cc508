package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/grigta/simgate/services/ussd-service/internal/models"
	"github.com/grigta/simgate/services/ussd-service/internal/normalize"
	"github.com/grigta/simgate/services/ussd-service/internal/repository"
)

func created(c *gin.Context, entity string, data interface{}) {
	c.JSON(http.StatusCreated, gin.H{"message": entity + " created successfully", "data": data})
}

func updated(c *gin.Context, entity string, data interface{}) {
	c.JSON(http.StatusOK, gin.H{"message": entity + " updated successfully", "data": data})
}

func deleted(c *gin.Context, entity string) {
	c.JSON(http.StatusOK, gin.H{"message": entity + " deleted successfully"})
}

// Devices

func (h *HTTPHandler) CreateDevice(c *gin.Context) {
	var payload devicePayload
	if err := decodeBody(c, &payload, normalize.DeviceAliases); err != nil {
		h.respondError(c, err)
		return
	}

	device := &models.Device{}
	payload.apply(device)
	if err := h.devices.Create(c.Request.Context(), device); err != nil {
		h.respondError(c, err)
		return
	}
	created(c, "Device", device)
}

func (h *HTTPHandler) ListDevices(c *gin.Context) {
	devices, err := h.devices.List(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, devices)
}

func (h *HTTPHandler) GetDevice(c *gin.Context) {
	device, err := h.devices.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, device)
}

// UpdateDevice edits the descriptive fields. Status changes go through SetDeviceStatus so the
// SIM cascade always runs.
func (h *HTTPHandler) UpdateDevice(c *gin.Context) {
	var payload devicePayload
	if err := decodeBody(c, &payload, normalize.DeviceAliases); err != nil {
		h.respondError(c, err)
		return
	}

	device, err := h.devices.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	payload.Status = normalize.OptionalBool{}
	payload.apply(device)

	if err := h.devices.Update(c.Request.Context(), device); err != nil {
		h.respondError(c, err)
		return
	}
	updated(c, "Device", device)
}

func (h *HTTPHandler) DeleteDevice(c *gin.Context) {
	if err := h.devices.Delete(c.Request.Context(), c.Param("id")); err != nil {
		h.respondError(c, err)
		return
	}
	deleted(c, "Device")
}

func (h *HTTPHandler) SetDeviceStatus(c *gin.Context) {
	var payload statusPayload
	if err := decodeBody(c, &payload, nil); err != nil {
		h.respondError(c, err)
		return
	}
	if !payload.Status.Set {
		h.respondError(c, badRequest(msgIncomplete))
		return
	}

	device, disabled, err := h.devices.SetStatus(c.Request.Context(), c.Param("id"), payload.Status.Value)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message":            "Device status updated successfully",
		"data":               device,
		"disabled_sim_cards": disabled,
	})
}

// SIM cards

func (h *HTTPHandler) CreateSimCard(c *gin.Context) {
	var payload simCardPayload
	if err := decodeBody(c, &payload, normalize.SimCardAliases); err != nil {
		h.respondError(c, err)
		return
	}

	sim := &models.SimCard{}
	if err := payload.apply(sim); err != nil {
		h.respondError(c, err)
		return
	}
	payload.applyFlags(sim)

	if err := h.sims.Create(c.Request.Context(), sim); err != nil {
		h.respondError(c, err)
		return
	}
	created(c, "SIM card", sim)
}

func (h *HTTPHandler) ListSimCards(c *gin.Context) {
	filter := repository.SimCardFilter{Operator: c.Query("operator")}
	if raw := c.Query("device_id"); raw != "" {
		id, err := primitive.ObjectIDFromHex(raw)
		if err != nil {
			h.respondError(c, badRequest("invalid device_id"))
			return
		}
		filter.DeviceID = &id
	}

	sims, err := h.sims.List(c.Request.Context(), filter)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sims)
}

func (h *HTTPHandler) GetSimCard(c *gin.Context) {
	sim, err := h.sims.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sim)
}

// UpdateSimCard writes the fields and flags of the payload in a single update, so a move onto an
// inactive device is rejected before anything changes.
func (h *HTTPHandler) UpdateSimCard(c *gin.Context) {
	var payload simCardPayload
	if err := decodeBody(c, &payload, normalize.SimCardAliases); err != nil {
		h.respondError(c, err)
		return
	}

	ctx := c.Request.Context()
	sim, err := h.sims.Get(ctx, c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	if err := payload.apply(sim); err != nil {
		h.respondError(c, err)
		return
	}
	payload.applyFlags(sim)

	if err := h.sims.Update(ctx, sim); err != nil {
		h.respondError(c, err)
		return
	}
	updated(c, "SIM card", sim)
}

func (h *HTTPHandler) DeleteSimCard(c *gin.Context) {
	if err := h.sims.Delete(c.Request.Context(), c.Param("id")); err != nil {
		h.respondError(c, err)
		return
	}
	deleted(c, "SIM card")
}

func (h *HTTPHandler) SetSimCardFlags(c *gin.Context) {
	var payload simCardPayload
	if err := decodeBody(c, &payload, normalize.SimCardAliases); err != nil {
		h.respondError(c, err)
		return
	}
	flags, ok := payload.flags()
	if !ok {
		h.respondError(c, badRequest(msgIncomplete))
		return
	}

	sim, err := h.sims.SetFlags(c.Request.Context(), c.Param("id"), flags)
	if err != nil {
		h.respondError(c, err)
		return
	}
	updated(c, "SIM card", sim)
}

// Users

func (h *HTTPHandler) CreateUser(c *gin.Context) {
	var payload userPayload
	if err := decodeBody(c, &payload, normalize.UserAliases); err != nil {
		h.respondError(c, err)
		return
	}
	if payload.Phone == "" || payload.Password == "" {
		h.respondError(c, badRequest(msgIncomplete))
		return
	}

	user := &models.User{Balance: float64(payload.Balance)}
	payload.apply(user)
	if err := h.users.Create(c.Request.Context(), user, payload.Password); err != nil {
		h.respondError(c, err)
		return
	}
	created(c, "User", user)
}

func (h *HTTPHandler) ListUsers(c *gin.Context) {
	users, err := h.users.List(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, users)
}

func (h *HTTPHandler) GetUser(c *gin.Context) {
	user, err := h.users.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

func (h *HTTPHandler) UpdateUser(c *gin.Context) {
	var payload userPayload
	if err := decodeBody(c, &payload, normalize.UserAliases); err != nil {
		h.respondError(c, err)
		return
	}

	user, err := h.users.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	payload.apply(user)

	if err := h.users.Update(c.Request.Context(), user); err != nil {
		h.respondError(c, err)
		return
	}
	updated(c, "User", user)
}

func (h *HTTPHandler) DeleteUser(c *gin.Context) {
	if err := h.users.Delete(c.Request.Context(), c.Param("id")); err != nil {
		h.respondError(c, err)
		return
	}
	deleted(c, "User")
}

func (h *HTTPHandler) AdjustBalance(c *gin.Context) {
	var payload balancePayload
	if err := decodeBody(c, &payload, nil); err != nil {
		h.respondError(c, err)
		return
	}

	user, err := h.users.AdjustBalance(c.Request.Context(), c.Param("id"), float64(payload.Delta))
	if err != nil {
		h.respondError(c, err)
		return
	}
	updated(c, "Balance", user)
}

// Message templates

func (h *HTTPHandler) CreateTemplate(c *gin.Context) {
	var payload templatePayload
	if err := decodeBody(c, &payload, normalize.TemplateAliases); err != nil {
		h.respondError(c, err)
		return
	}
	if payload.ServerMessage == "" || payload.CustomerMessage == "" {
		h.respondError(c, badRequest(msgIncomplete))
		return
	}

	tpl := &models.MessageTemplate{}
	payload.apply(tpl)
	if err := h.reference.CreateTemplate(c.Request.Context(), tpl); err != nil {
		h.respondError(c, err)
		return
	}
	created(c, "Message", tpl)
}

func (h *HTTPHandler) ListTemplates(c *gin.Context) {
	templates, err := h.reference.ListTemplates(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, templates)
}

func (h *HTTPHandler) GetTemplate(c *gin.Context) {
	tpl, err := h.reference.GetTemplate(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, tpl)
}

func (h *HTTPHandler) UpdateTemplate(c *gin.Context) {
	var payload templatePayload
	if err := decodeBody(c, &payload, normalize.TemplateAliases); err != nil {
		h.respondError(c, err)
		return
	}

	tpl, err := h.reference.GetTemplate(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	payload.apply(tpl)

	if err := h.reference.UpdateTemplate(c.Request.Context(), tpl); err != nil {
		h.respondError(c, err)
		return
	}
	updated(c, "Message", tpl)
}

func (h *HTTPHandler) DeleteTemplate(c *gin.Context) {
	if err := h.reference.DeleteTemplate(c.Request.Context(), c.Param("id")); err != nil {
		h.respondError(c, err)
		return
	}
	deleted(c, "Message")
}

// Config

func (h *HTTPHandler) CreateConfig(c *gin.Context) {
	var payload configPayload
	if err := decodeBody(c, &payload, normalize.ConfigAliases); err != nil {
		h.respondError(c, err)
		return
	}

	entry := &models.ConfigEntry{}
	payload.apply(entry)
	if err := h.reference.CreateConfig(c.Request.Context(), entry); err != nil {
		h.respondError(c, err)
		return
	}
	created(c, "Config", entry)
}

func (h *HTTPHandler) ListConfig(c *gin.Context) {
	entries, err := h.reference.ListConfig(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, entries)
}

func (h *HTTPHandler) GetConfig(c *gin.Context) {
	entry, err := h.reference.GetConfig(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, entry)
}

func (h *HTTPHandler) UpdateConfig(c *gin.Context) {
	var payload configPayload
	if err := decodeBody(c, &payload, normalize.ConfigAliases); err != nil {
		h.respondError(c, err)
		return
	}

	entry, err := h.reference.GetConfig(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	payload.apply(entry)

	if err := h.reference.UpdateConfig(c.Request.Context(), entry); err != nil {
		h.respondError(c, err)
		return
	}
	updated(c, "Config", entry)
}

func (h *HTTPHandler) DeleteConfig(c *gin.Context) {
	if err := h.reference.DeleteConfig(c.Request.Context(), c.Param("id")); err != nil {
		h.respondError(c, err)
		return
	}
	deleted(c, "Config")
}

func (h *HTTPHandler) ToggleConfig(c *gin.Context) {
	entry, err := h.reference.ToggleConfig(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	updated(c, "Config", entry)
}
