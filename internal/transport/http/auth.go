package httptransport

import (
	"github.com/gin-gonic/gin"

	"virtualaddresshub/backend/internal/auth"
	jwtpkg "virtualaddresshub/backend/internal/auth/jwt"
	"virtualaddresshub/backend/internal/domain"
)

// AuthHandler serves registration, login and token refresh.
type AuthHandler struct {
	authService *auth.Service
	jwtManager  *jwtpkg.Manager
}

func NewAuthHandler(authService *auth.Service, jwtManager *jwtpkg.Manager) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		jwtManager:  jwtManager,
	}
}

type registerRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
	Username string `json:"username" binding:"required"`
}

type loginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken" binding:"required"`
}

type authResponse struct {
	User   *userResponse     `json:"user"`
	Tokens *jwtpkg.TokenPair `json:"tokens"`
}

type userResponse struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	Username  string `json:"username"`
	Role      string `json:"role"`
	KycStatus string `json:"kycStatus"`
}

func toUserResponse(user *domain.User) *userResponse {
	return &userResponse{
		ID:        user.ID,
		Email:     user.Email,
		Username:  user.Username,
		Role:      string(user.Role),
		KycStatus: string(user.KycStatus),
	}
}

// Register godoc
// @Summary Create an account
// @Tags Auth
// @Accept json
// @Produce json
// @Param request body registerRequest true "Registration details"
// @Success 201 {object} authResponse
// @Failure 400 {object} Response
// @Failure 409 {object} Response
// @Router /v1/auth/register [post]
func (h *AuthHandler) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}

	user, err := h.authService.Register(auth.RegisterInput{
		Email:    req.Email,
		Password: req.Password,
		Username: req.Username,
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}

	tokens, err := h.jwtManager.GenerateTokenPair(user.ID, user.Email, string(user.Role))
	if err != nil {
		InternalError(c, MsgInternalError)
		return
	}

	Created(c, authResponse{User: toUserResponse(user), Tokens: tokens})
}

// Login godoc
// @Summary Authenticate and issue tokens
// @Tags Auth
// @Accept json
// @Produce json
// @Param request body loginRequest true "Credentials"
// @Success 200 {object} authResponse
// @Failure 401 {object} Response
// @Router /v1/auth/login [post]
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}

	user, err := h.authService.Login(auth.LoginInput{
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}

	tokens, err := h.jwtManager.GenerateTokenPair(user.ID, user.Email, string(user.Role))
	if err != nil {
		InternalError(c, MsgInternalError)
		return
	}

	Success(c, authResponse{User: toUserResponse(user), Tokens: tokens})
}

// Refresh godoc
// @Summary Exchange a refresh token for a new access token
// @Tags Auth
// @Accept json
// @Produce json
// @Param request body refreshRequest true "Refresh token"
// @Success 200 {object} Response
// @Failure 401 {object} Response
// @Router /v1/auth/refresh [post]
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}

	accessToken, err := h.jwtManager.RefreshAccessToken(req.RefreshToken)
	if err != nil {
		Unauthorized(c, "invalid refresh token")
		return
	}

	Success(c, gin.H{"accessToken": accessToken})
}

// Me godoc
// @Summary Get the authenticated user's profile
// @Tags Auth
// @Produce json
// @Security BearerAuth
// @Success 200 {object} userResponse
// @Failure 401 {object} Response
// @Router /v1/auth/me [get]
func (h *AuthHandler) Me(c *gin.Context) {
	user, err := h.authService.GetUserByID(c.GetString("userID"))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	Success(c, toUserResponse(user))
}
