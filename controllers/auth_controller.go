// controllers/auth_controller.go
package controllers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"Gin_postgres_redis_lending/app"

	"github.com/gin-gonic/gin"
	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const ceremonyTimeout = 3 * time.Second

func (s *Srv) WhoAmI(c *app.Ctx) {
	ctx := c.Request.Context()
	u, err := s.Repo.FindUserByID(ctx, app.UserID(c))
	if err != nil {
		c.JSON(http.StatusUnauthorized, app.H{"error": "unauthorized"})
		return
	}
	credCount, err := s.Repo.CountCredentials(ctx, u.ID)
	if err != nil {
		s.internalError(c, "count credentials", err)
		return
	}
	c.JSON(http.StatusOK, app.H{
		"user":            u,
		"blocked":         u.IsCurrentlyBlocked(s.Clock.Now()),
		"credentialCount": credCount,
	})
}

// Logout 删除 Redis 会话并清空 Cookie
func (s *Srv) Logout(c *app.Ctx) {
	if ck, err := c.Request.Cookie(app.AppSessionCookie); err == nil && ck.Value != "" {
		_ = s.AppSess.Delete(c.Request.Context(), ck.Value)
	}
	s.setAppCookie(c.Writer, "", -1)
	c.JSON(http.StatusOK, app.H{"ok": true})
}

// ===== 注册 =====

type registerBeginReq struct {
	Username    string `json:"username" binding:"required"`
	DisplayName string `json:"displayName"`
}

func (s *Srv) BeginRegistration(c *gin.Context) {
	var in registerBeginReq
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, app.H{"error": err.Error()})
		return
	}
	username := strings.ToLower(strings.TrimSpace(in.Username))
	if username == "" {
		c.JSON(http.StatusBadRequest, app.H{"error": "username is required"})
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), ceremonyTimeout)
	defer cancel()

	// 若不存在则创建用户（UUID）
	u, err := s.Repo.FindOrCreateUser(ctx, username, uuid.NewString())
	if err != nil {
		s.internalError(c, "find or create user", err)
		return
	}
	// 已有 passkey 的用户名只能通过登录后添加凭据
	if n, err := s.Repo.CountCredentials(ctx, u.ID); err != nil {
		s.internalError(c, "count credentials", err)
		return
	} else if n > 0 {
		c.JSON(http.StatusConflict, app.H{"error": "username already registered"})
		return
	}
	if dn := strings.TrimSpace(in.DisplayName); dn != "" {
		u.DisplayName = dn
	}

	wUser, err := s.toWAUser(ctx, u)
	if err != nil {
		s.internalError(c, "load credentials", err)
		return
	}
	s.beginRegistration(c, ctx, wUser)
}

func (s *Srv) FinishRegistration(c *gin.Context) {
	username := strings.ToLower(strings.TrimSpace(c.Query("username")))
	if username == "" {
		c.JSON(http.StatusBadRequest, app.H{"error": "missing username"})
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), ceremonyTimeout)
	defer cancel()

	wUser, err := s.loadWAUserByUsername(ctx, username)
	if err != nil {
		c.JSON(http.StatusNotFound, app.H{"error": "user not found"})
		return
	}
	if !s.finishRegistration(c, ctx, wUser) {
		return
	}

	// 注册即登录
	if err := s.issueSession(ctx, c.Writer, wUser.user.ID); err != nil {
		s.internalError(c, "create app session", err)
		return
	}
	c.JSON(http.StatusOK, app.H{"ok": true, "username": wUser.user.Username})
}

// ===== 添加新凭据（已登录） =====

func (s *Srv) BeginAddCredential(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), ceremonyTimeout)
	defer cancel()

	wUser, err := s.loadWAUserByID(ctx, app.UserID(c))
	if err != nil {
		c.JSON(http.StatusUnauthorized, app.H{"error": "unauthorized"})
		return
	}
	s.beginRegistration(c, ctx, wUser)
}

func (s *Srv) FinishAddCredential(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), ceremonyTimeout)
	defer cancel()

	wUser, err := s.loadWAUserByID(ctx, app.UserID(c))
	if err != nil {
		c.JSON(http.StatusUnauthorized, app.H{"error": "unauthorized"})
		return
	}
	if !s.finishRegistration(c, ctx, wUser) {
		return
	}
	c.JSON(http.StatusOK, app.H{"ok": true})
}

func (s *Srv) beginRegistration(c *gin.Context, ctx context.Context, wUser *waUser) {
	opts, sd, err := s.WA.BeginRegistration(
		wUser,
		webauthn.WithResidentKeyRequirement(protocol.ResidentKeyRequirementRequired),
		webauthn.WithAuthenticatorSelection(protocol.AuthenticatorSelection{
			UserVerification: protocol.VerificationRequired,
		}),
	)
	if err != nil {
		s.internalError(c, "begin registration", err)
		return
	}
	if err := s.Ceremonies.SaveReg(ctx, wUser.user.Username, sd); err != nil {
		s.internalError(c, "save registration ceremony", err)
		return
	}
	c.JSON(http.StatusOK, app.H{"opts": opts})
}

// finishRegistration 校验凭据并落库；失败时已写好响应
func (s *Srv) finishRegistration(c *gin.Context, ctx context.Context, wUser *waUser) bool {
	sd, err := s.Ceremonies.LoadReg(ctx, wUser.user.Username)
	if err != nil {
		c.JSON(http.StatusBadRequest, app.H{"error": "session expired or invalid"})
		return false
	}
	cred, err := s.WA.FinishRegistration(wUser, *sd, c.Request)
	if err != nil {
		c.JSON(http.StatusBadRequest, app.H{"error": err.Error()})
		return false
	}
	if err := s.Repo.AddCredential(ctx, fromWaCred(wUser.user.ID, cred)); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			c.JSON(http.StatusConflict, app.H{"error": "credential already registered"})
			return false
		}
		s.internalError(c, "add credential", err)
		return false
	}
	s.Ceremonies.DelReg(ctx, wUser.user.Username)
	return true
}

// ===== 登录 =====

type loginBeginReq struct {
	Username     string `json:"username"`
	Discoverable bool   `json:"discoverable"`
}
type loginBeginResp struct {
	Options   *protocol.CredentialAssertion `json:"options"`
	SessionID string                        `json:"sessionId"`
}

func (s *Srv) BeginLogin(c *gin.Context) {
	var req loginBeginReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, app.H{"error": "bad request"})
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), ceremonyTimeout)
	defer cancel()

	var (
		opts *protocol.CredentialAssertion
		sd   *webauthn.SessionData
		err  error
	)
	if req.Discoverable {
		opts, sd, err = s.WA.BeginDiscoverableLogin(webauthn.WithUserVerification(protocol.VerificationRequired))
	} else {
		wUser, err2 := s.loadWAUserByUsername(ctx, strings.ToLower(strings.TrimSpace(req.Username)))
		if err2 != nil {
			c.JSON(http.StatusNotFound, app.H{"error": "user not found"})
			return
		}
		opts, sd, err = s.WA.BeginLogin(wUser, webauthn.WithUserVerification(protocol.VerificationRequired))
	}
	if err != nil {
		s.internalError(c, "begin login", err)
		return
	}

	sid := uuid.NewString()
	if err := s.Ceremonies.SaveAuth(ctx, sid, sd); err != nil {
		s.internalError(c, "save login ceremony", err)
		return
	}
	c.JSON(http.StatusOK, loginBeginResp{Options: opts, SessionID: sid})
}

func (s *Srv) FinishLogin(c *gin.Context) {
	sid := c.Query("sessionId")
	if sid == "" {
		c.JSON(http.StatusBadRequest, app.H{"error": "missing sessionId"})
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), ceremonyTimeout)
	defer cancel()

	sd, err := s.Ceremonies.LoadAuth(ctx, sid)
	if err != nil {
		c.JSON(http.StatusBadRequest, app.H{"error": "session expired or invalid"})
		return
	}

	var (
		userID string
		cred   *webauthn.Credential
	)
	if username := c.Query("username"); username != "" {
		wUser, err := s.loadWAUserByUsername(ctx, strings.ToLower(strings.TrimSpace(username)))
		if err != nil {
			c.JSON(http.StatusNotFound, app.H{"error": "user not found"})
			return
		}
		if cred, err = s.WA.FinishLogin(wUser, *sd, c.Request); err != nil {
			c.JSON(http.StatusUnauthorized, app.H{"error": err.Error()})
			return
		}
		userID = wUser.user.ID
	} else {
		handler := func(rawID, _ []byte) (webauthn.User, error) {
			u, _, err := s.Repo.FindUserByCredentialID(ctx, rawID)
			if err != nil {
				return nil, protocol.ErrBadRequest.WithDetails("credential not found")
			}
			return s.toWAUser(ctx, u)
		}
		user, c2, err := s.WA.FinishPasskeyLogin(handler, *sd, c.Request)
		if err != nil {
			c.JSON(http.StatusUnauthorized, app.H{"error": err.Error()})
			return
		}
		userID, cred = user.(*waUser).user.ID, c2
	}
	s.Ceremonies.DelAuth(ctx, sid)

	if err := s.Repo.UpdateCredentialCounter(ctx, cred.ID, cred.Authenticator.SignCount, cred.Authenticator.CloneWarning, s.Clock.Now()); err != nil {
		s.Logger.Warn(s.Logger.WithField(ctx, "error", err.Error()), "update credential counter failed")
	}
	if err := s.issueSession(ctx, c.Writer, userID); err != nil {
		s.internalError(c, "create app session", err)
		return
	}
	c.JSON(http.StatusOK, app.H{"ok": true, "redirect": "/dashboard"})
}
