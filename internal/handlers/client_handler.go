package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/sjperalta/fintera-prestamos/internal/models"
	"github.com/sjperalta/fintera-prestamos/internal/services"
)

type ClientHandler struct {
	clientService         *services.ClientService
	classificationService *services.ClassificationService
}

func NewClientHandler(clientService *services.ClientService, classificationService *services.ClassificationService) *ClientHandler {
	return &ClientHandler{clientService: clientService, classificationService: classificationService}
}

type CreateClientRequest struct {
	FullName string  `json:"full_name"`
	Identity string  `json:"identity"`
	Phone    string  `json:"phone"`
	Address  *string `json:"address"`
	Note     *string `json:"note"`
}

// @Summary Create Client
// @Description Registers a borrower. Accepts {"client": {...}} or a flat body.
// @Tags Clients
// @Accept json
// @Produce json
// @Param request body CreateClientRequest true "Client"
// @Success 201 {object} models.ClientResponse
// @Failure 400 {object} map[string]string
// @Failure 409 {object} map[string]string
// @Router /clients [post]
func (h *ClientHandler) Create(c *gin.Context) {
	var req CreateClientRequest
	if err := bindPayload(c, "client", &req); err != nil {
		respondError(c, err)
		return
	}

	client, err := h.clientService.Create(c.Request.Context(), services.CreateClientInput{
		FullName: req.FullName,
		Identity: req.Identity,
		Phone:    req.Phone,
		Address:  req.Address,
		Note:     req.Note,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"client": client.ToResponse()})
}

// @Summary List Clients
// @Description Get a paginated list of clients
// @Tags Clients
// @Produce json
// @Param page query int false "Page number" default(1)
// @Param per_page query int false "Items per page" default(20)
// @Param search query string false "Name, identity or phone"
// @Param classification query string false "AL_DIA, ATRASADO or MOROSO"
// @Param sort query string false "field-direction, e.g. full_name-asc"
// @Success 200 {object} map[string]interface{}
// @Router /clients [get]
func (h *ClientHandler) Index(c *gin.Context) {
	query := listQuery(c)
	if class := strings.ToUpper(c.Query("classification")); class != "" {
		query.Filters["classification"] = class
	}

	clients, total, err := h.clientService.List(c.Request.Context(), query)
	if err != nil {
		respondError(c, err)
		return
	}

	responses := make([]models.ClientResponse, 0, len(clients))
	for i := range clients {
		responses = append(responses, clients[i].ToResponse())
	}
	c.JSON(http.StatusOK, gin.H{
		"clients":    responses,
		"pagination": pagination(query, total),
	})
}

// @Summary Get Client
// @Tags Clients
// @Produce json
// @Param client_id path string true "Client ID"
// @Success 200 {object} models.ClientResponse
// @Failure 404 {object} map[string]string
// @Router /clients/{client_id} [get]
func (h *ClientHandler) Show(c *gin.Context) {
	id, ok := uuidParam(c, "client_id")
	if !ok {
		return
	}
	client, err := h.clientService.FindByID(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"client": client.ToResponse()})
}

// @Summary Client Loans
// @Description Every loan of a client, closed ones included
// @Tags Clients
// @Produce json
// @Param client_id path string true "Client ID"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} map[string]string
// @Router /clients/{client_id}/loans [get]
func (h *ClientHandler) Loans(c *gin.Context) {
	id, ok := uuidParam(c, "client_id")
	if !ok {
		return
	}
	loans, err := h.clientService.Loans(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	responses := make([]models.LoanResponse, 0, len(loans))
	for i := range loans {
		responses = append(responses, loans[i].ToResponse())
	}
	c.JSON(http.StatusOK, gin.H{"loans": responses})
}

// @Summary Client Classification
// @Description Current payment health of a client, computed on the fly
// @Tags Clients
// @Produce json
// @Param client_id path string true "Client ID"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} map[string]string
// @Router /clients/{client_id}/classification [get]
func (h *ClientHandler) Classification(c *gin.Context) {
	id, ok := uuidParam(c, "client_id")
	if !ok {
		return
	}
	result, err := h.classificationService.Classify(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	resp := gin.H{
		"client_id":           result.ClientID,
		"classification":      result.Status,
		"label":               services.ClassificationLabel(result.Status),
		"max_overdue_periods": result.MaxOverduePeriods,
		"longest_run":         result.LongestRun,
		"late_installments":   result.LateInstallments,
	}
	if result.WorstLoanID != uuid.Nil {
		resp["worst_loan_id"] = result.WorstLoanID
	}
	c.JSON(http.StatusOK, resp)
}
