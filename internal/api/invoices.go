package api

import (
	"net/http"

	"invoice-service/internal/service"

	"github.com/gin-gonic/gin"
)

// createInvoice handles order intake
func (h *Handler) createInvoice(c *gin.Context) {
	var req service.CreateInvoiceRequest
	if !bindJSON(c, &req) {
		return
	}

	principal, _ := principalFrom(c)
	result, err := h.invoices.SubmitOrder(c.Request.Context(), principal, &req)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, result)
}

func (h *Handler) listInvoices(c *gin.Context) {
	invoices, err := h.invoices.ListInvoices(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, invoices)
}

// getInvoice returns the invoice with its lines
func (h *Handler) getInvoice(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	invoice, err := h.invoices.GetInvoice(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, invoice)
}

func (h *Handler) listInvoiceDetails(c *gin.Context) {
	details, err := h.invoices.ListInvoiceDetails(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, details)
}

// listInvoiceDetailsByProduct filters invoice lines by product id
func (h *Handler) listInvoiceDetailsByProduct(c *gin.Context) {
	productID, ok := parseID(c, "id")
	if !ok {
		return
	}

	details, err := h.invoices.ListInvoiceDetailsByProduct(c.Request.Context(), productID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, details)
}
