// controllers/loan_controller.go
package controllers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"Gin_postgres_redis_lending/app"
	"Gin_postgres_redis_lending/db"
	"Gin_postgres_redis_lending/loans"
	"Gin_postgres_redis_lending/models"

	"github.com/gin-gonic/gin"
)

type LoanController struct{ *Srv }

func NewLoanController(s *Srv) *LoanController { return &LoanController{Srv: s} }

type createLoanReq struct {
	ItemID    string    `json:"itemId"`
	StartDate time.Time `json:"startDate"`
	EndDate   time.Time `json:"endDate"`
	Notes     string    `json:"notes"`
}

// CreateLoan 借用人 = 当前登录用户；字段校验交给 loans.Service
func (lc *LoanController) CreateLoan(c *gin.Context) {
	var in createLoanReq
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, app.H{"error": "invalid request body"})
		return
	}
	ctx := lc.Logger.WithField(c.Request.Context(), "item_id", in.ItemID)
	loan, err := lc.Loans.CreateLoan(ctx, loans.CreateLoanInput{
		ItemID:     in.ItemID,
		BorrowerID: app.UserID(c),
		StartDate:  in.StartDate,
		EndDate:    in.EndDate,
		Notes:      in.Notes,
	})
	if err != nil {
		lc.writeLoanError(c, err)
		return
	}
	c.JSON(http.StatusCreated, loan)
}

// ListLoans ?role=borrower|owner&status=
func (lc *LoanController) ListLoans(c *gin.Context) {
	role, err := db.ParseLoanRole(c.Query("role"))
	if err != nil {
		c.JSON(http.StatusBadRequest, app.H{"error": err.Error()})
		return
	}
	q := db.LoansQuery{UserID: app.UserID(c), Role: role}
	if v := c.Query("status"); v != "" {
		if q.Status, err = models.ParseLoanStatus(v); err != nil {
			c.JSON(http.StatusBadRequest, app.H{"error": err.Error()})
			return
		}
	}
	ls, err := lc.Repo.ListLoansForUser(c.Request.Context(), q)
	if err != nil {
		lc.internalError(c, "list loans", err)
		return
	}
	c.JSON(http.StatusOK, app.H{"items": ls})
}

func (lc *LoanController) GetLoan(c *gin.Context) {
	loan, err := lc.Loans.GetLoan(c.Request.Context(), c.Param("id"), app.UserID(c))
	if err != nil {
		lc.writeLoanError(c, err)
		return
	}
	c.JSON(http.StatusOK, loan)
}

type loanAction func(ctx context.Context, loanID, callerID string) (*models.Loan, error)

// action 包装专用流转接口：approve / reject / activate / initiate-return / confirm-return / settle
func (lc *LoanController) action(fn loanAction) gin.HandlerFunc {
	return func(c *gin.Context) {
		loanID := c.Param("id")
		ctx := lc.Logger.WithLoanID(c.Request.Context(), loanID)
		loan, err := fn(ctx, loanID, app.UserID(c))
		if err != nil {
			lc.writeLoanError(c, err)
			return
		}
		c.JSON(http.StatusOK, loan)
	}
}

func (lc *LoanController) Approve() gin.HandlerFunc        { return lc.action(lc.Loans.ApproveRequest) }
func (lc *LoanController) Reject() gin.HandlerFunc         { return lc.action(lc.Loans.RejectRequest) }
func (lc *LoanController) Activate() gin.HandlerFunc       { return lc.action(lc.Loans.ActivateLoan) }
func (lc *LoanController) InitiateReturn() gin.HandlerFunc { return lc.action(lc.Loans.InitiateReturn) }
func (lc *LoanController) ConfirmReturn() gin.HandlerFunc  { return lc.action(lc.Loans.ConfirmReturn) }
func (lc *LoanController) Settle() gin.HandlerFunc         { return lc.action(lc.Loans.SettleOverdue) }

type updateStatusReq struct {
	Status string `json:"status" binding:"required"`
}

// UpdateStatus 通用状态更新：PUT /api/loans/:id/status {"status": "..."}
func (lc *LoanController) UpdateStatus(c *gin.Context) {
	var in updateStatusReq
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, app.H{"error": err.Error()})
		return
	}
	// 未知状态由 Service 返回 INVALID_REQUEST
	status := models.LoanStatus(strings.ToLower(strings.TrimSpace(in.Status)))
	loanID := c.Param("id")
	ctx := lc.Logger.WithLoanID(c.Request.Context(), loanID)
	loan, err := lc.Loans.UpdateStatus(ctx, loanID, status, app.UserID(c))
	if err != nil {
		lc.writeLoanError(c, err)
		return
	}
	c.JSON(http.StatusOK, loan)
}
