package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/citydrive/carshare-backend/account"
	"github.com/citydrive/carshare-backend/internal/middleware"
)

type profileResponse struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Phone   string `json:"phone"`
	Balance int    `json:"balance"`
}

type updateProfileRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

type addCardRequest struct {
	Holder      string `json:"holder" binding:"required"`
	Number      string `json:"number" binding:"required"`
	ExpireMonth string `json:"expireMonth" binding:"required"`
	ExpireYear  string `json:"expireYear" binding:"required"`
	CVV         string `json:"cvv" binding:"required"`
	Type        string `json:"type" binding:"required"`
}

type cardResponse struct {
	Holder string `json:"holder"`
	Last4  string `json:"last4"`
	Expiry string `json:"expiry"`
	Type   string `json:"type"`
}

func toCardResponse(c account.Card) cardResponse {
	return cardResponse{
		Holder: c.Holder,
		Last4:  c.Last4(),
		Expiry: c.ExpireMonth + "/" + c.ExpireYear,
		Type:   c.Type,
	}
}

type topUpRequest struct {
	Amount string `json:"amount" binding:"required"`
}

func (a *API) profileHandler(c *gin.Context) {
	acct, _, ok := a.getAccount(c)
	if !ok {
		return
	}

	c.JSON(http.StatusOK, profileResponse{
		Name:    acct.Name,
		Email:   acct.Email,
		Phone:   acct.Phone,
		Balance: acct.Balance,
	})
}

// updateProfileHandler saves edited profile fields. Blank fields keep their
// stored value.
func (a *API) updateProfileHandler(c *gin.Context) {
	logger := middleware.GetLogger(c)

	var req updateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "INVALID_REQUEST", "message": err.Error()})
		return
	}

	acct, _, unlock, ok := a.lockedAccount(c)
	if !ok {
		return
	}
	defer unlock()

	if req.Name != "" {
		acct.Name = req.Name
	}
	if req.Email != "" {
		acct.Email = req.Email
	}
	if req.Phone != "" {
		acct.Phone = req.Phone
	}

	if err := a.cfg.Store.Put(c.Request.Context(), acct); err != nil {
		logger.Error("Failed to save profile", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	c.JSON(http.StatusOK, profileResponse{
		Name:    acct.Name,
		Email:   acct.Email,
		Phone:   acct.Phone,
		Balance: acct.Balance,
	})
}

func (a *API) balanceHandler(c *gin.Context) {
	acct, _, ok := a.getAccount(c)
	if !ok {
		return
	}

	c.JSON(http.StatusOK, gin.H{"balance": acct.Balance})
}

func (a *API) topUpBalanceHandler(c *gin.Context) {
	logger := middleware.GetLogger(c)

	var req topUpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "INVALID_REQUEST", "message": err.Error()})
		return
	}

	amount, err := strconv.Atoi(req.Amount)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "INVALID_AMOUNT", "message": "Amount must be a whole number"})
		return
	}

	acct, _, unlock, ok := a.lockedAccount(c)
	if !ok {
		return
	}
	defer unlock()

	acct.Balance += amount
	if err := a.cfg.Store.Put(c.Request.Context(), acct); err != nil {
		logger.Error("Failed to save balance", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"balance": acct.Balance})
}

func (a *API) cardsHandler(c *gin.Context) {
	acct, _, ok := a.getAccount(c)
	if !ok {
		return
	}

	responses := make([]cardResponse, 0, len(acct.Cards))
	for _, card := range acct.Cards {
		responses = append(responses, toCardResponse(card))
	}
	c.JSON(http.StatusOK, responses)
}

func (a *API) addCardHandler(c *gin.Context) {
	logger := middleware.GetLogger(c)

	var req addCardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "INVALID_REQUEST", "message": err.Error()})
		return
	}

	acct, _, unlock, ok := a.lockedAccount(c)
	if !ok {
		return
	}
	defer unlock()

	acct.AddCard(account.Card{
		Holder:      req.Holder,
		Number:      req.Number,
		ExpireMonth: req.ExpireMonth,
		ExpireYear:  req.ExpireYear,
		CVV:         req.CVV,
		Type:        req.Type,
	})

	if err := a.cfg.Store.Put(c.Request.Context(), acct); err != nil {
		logger.Error("Failed to save card", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	c.JSON(http.StatusCreated, toCardResponse(acct.Cards[0]))
}

func (a *API) removeCardHandler(c *gin.Context) {
	logger := middleware.GetLogger(c)

	acct, _, unlock, ok := a.lockedAccount(c)
	if !ok {
		return
	}
	defer unlock()

	if !acct.RemoveCard(c.Param("number")) {
		c.JSON(http.StatusNotFound, gin.H{"code": "CARD_NOT_FOUND", "message": "Card not found"})
		return
	}

	if err := a.cfg.Store.Put(c.Request.Context(), acct); err != nil {
		logger.Error("Failed to remove card", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true})
}
