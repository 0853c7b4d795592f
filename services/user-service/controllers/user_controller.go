package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	awspkg "github.com/shopswift/commerce-backend/pkg/aws"
	apperrors "github.com/shopswift/commerce-backend/services/common/errors"
	"github.com/shopswift/commerce-backend/services/common/logger"
	"github.com/shopswift/commerce-backend/services/user-service/models"
	"github.com/shopswift/commerce-backend/services/user-service/repository"
)

type UserController struct {
	Repo    repository.UserRepository
	Logger  *zap.Logger
	Metrics awspkg.Recorder
}

func NewUserController(repo repository.UserRepository, log *zap.Logger, metrics awspkg.Recorder) *UserController {
	if log == nil {
		log = zap.NewNop()
	}
	if metrics == nil {
		metrics = awspkg.NopRecorder{}
	}
	return &UserController{Repo: repo, Logger: log, Metrics: metrics}
}

func (uc *UserController) fail(c *gin.Context, op string, err error) {
	log := logger.FromContext(c.Request.Context(), uc.Logger)
	if apperrors.HTTPStatus(err) >= http.StatusInternalServerError {
		log.Error(op+" failed", zap.Error(err))
	} else {
		log.Debug(op+" rejected", zap.Error(err))
	}
	apperrors.Respond(c, err)
}

// lookup addresses the user by :username, falling back to ?email=.
func lookup(c *gin.Context) (repository.Lookup, bool) {
	if username := c.Param("username"); username != "" {
		return repository.ByUsername(username), true
	}
	if email := c.Query("email"); email != "" {
		return repository.ByEmail(email), true
	}
	apperrors.Respond(c, apperrors.Validation("username or email is required"))
	return repository.Lookup{}, false
}

// CreateUser handles POST /user.
func (uc *UserController) CreateUser(c *gin.Context) {
	var req models.CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperrors.Respond(c, apperrors.Validation("invalid payload"))
		return
	}

	user, err := uc.Repo.Create(c.Request.Context(), models.NewUser(req))
	if err != nil {
		uc.fail(c, "create user", err)
		return
	}
	c.JSON(http.StatusCreated, user)
}

// GetUser handles GET /user/:username and GET /user?email=.
func (uc *UserController) GetUser(c *gin.Context) {
	l, ok := lookup(c)
	if !ok {
		return
	}
	user, err := uc.Repo.Get(c.Request.Context(), l)
	if err != nil {
		uc.fail(c, "get user", err)
		return
	}
	c.JSON(http.StatusOK, user)
}

// UpdateProfile handles PUT /user/:username.
func (uc *UserController) UpdateProfile(c *gin.Context) {
	var patch models.UserPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		apperrors.Respond(c, apperrors.Validation("invalid payload"))
		return
	}
	uc.update(c, repository.ByUsername(c.Param("username")), patch)
}

// UpdateProfileByEmail handles PUT /user, addressing the user by email.
func (uc *UserController) UpdateProfileByEmail(c *gin.Context) {
	var req models.ProfileUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperrors.Respond(c, apperrors.Validation("invalid payload"))
		return
	}
	email := req.Email
	if email == "" {
		email = c.Query("email")
	}
	if email == "" {
		apperrors.Respond(c, apperrors.Validation("email is required"))
		return
	}
	uc.update(c, repository.ByEmail(email), models.UserPatch{First: req.First, Last: req.Last})
}

func (uc *UserController) update(c *gin.Context, l repository.Lookup, patch models.UserPatch) {
	if patch.Empty() {
		apperrors.Respond(c, apperrors.Validation("No update parameters specified"))
		return
	}
	user, err := uc.Repo.Update(c.Request.Context(), l, patch)
	if err != nil {
		uc.fail(c, "update user", err)
		return
	}
	c.JSON(http.StatusOK, user)
}

// UpdateEmail handles PUT /user/:username/email.
func (uc *UserController) UpdateEmail(c *gin.Context) {
	var req models.EmailUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperrors.Respond(c, apperrors.Validation("a valid email is required"))
		return
	}
	user, err := uc.Repo.UpdateEmail(c.Request.Context(), c.Param("username"), req.Email)
	if err != nil {
		uc.fail(c, "update email", err)
		return
	}
	c.JSON(http.StatusOK, user)
}

// UpdateUsername handles PUT /user/username.
func (uc *UserController) UpdateUsername(c *gin.Context) {
	var req models.UsernameUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperrors.Respond(c, apperrors.Validation("email and username are required"))
		return
	}
	user, err := uc.Repo.UpdateUsername(c.Request.Context(), req.Email, req.Username)
	if err != nil {
		uc.fail(c, "update username", err)
		return
	}
	c.JSON(http.StatusOK, user)
}

// DeleteUser handles DELETE /user/:username and DELETE /user?email=. Carts are cleared
// asynchronously once the deletion event is relayed.
func (uc *UserController) DeleteUser(c *gin.Context) {
	l, ok := lookup(c)
	if !ok {
		return
	}
	user, err := uc.Repo.Delete(c.Request.Context(), l)
	if err != nil {
		uc.fail(c, "delete user", err)
		return
	}
	_ = uc.Metrics.RecordCount(c.Request.Context(), awspkg.MetricUsersDeleted, nil)
	logger.FromContext(c.Request.Context(), uc.Logger).Info("user deleted", zap.String("username", user.Username))
	c.JSON(http.StatusOK, user)
}
