package services

import (
	"strings"

	"github.com/kendall-kelly/usta-go-api/apperrors"
	"github.com/kendall-kelly/usta-go-api/models"
)

func (s *ServiceSuite) TestRegisterAndAuthenticate() {
	user, err := s.svc.Users.Register(s.ctx, RegisterInput{
		Name:     "Ayse Usta",
		Email:    "Ayse@Example.com",
		Password: "s3cret-pass",
		Role:     models.RoleProfessional,
	})
	s.Require().NoError(err)
	s.Equal("ayse@example.com", user.Email)
	s.Equal(models.RoleProfessional, user.Role)
	s.True(strings.HasPrefix(user.AuthSubject, LocalSubjectPrefix))
	s.NotEqual("s3cret-pass", user.PasswordHash)

	got, err := s.svc.Users.Authenticate(s.ctx, "AYSE@example.com", "s3cret-pass")
	s.Require().NoError(err)
	s.Equal(user.ID, got.ID)

	_, err = s.svc.Users.Authenticate(s.ctx, "ayse@example.com", "wrong-pass")
	s.requireKind(err, apperrors.KindUnauthenticated)
	_, err = s.svc.Users.Authenticate(s.ctx, "nobody@example.com", "s3cret-pass")
	s.requireKind(err, apperrors.KindUnauthenticated)

	_, err = s.svc.Users.Register(s.ctx, RegisterInput{Name: "Dup", Email: "ayse@EXAMPLE.com", Password: "another-pass"})
	s.requireKind(err, apperrors.KindConflict)
}

func (s *ServiceSuite) TestRegister_Validation() {
	tests := []struct {
		name  string
		input RegisterInput
		kind  apperrors.Kind
	}{
		{"admin role", RegisterInput{Name: "A", Email: "a@test.com", Password: "password1", Role: models.RoleAdmin}, apperrors.KindForbidden},
		{"blank name", RegisterInput{Name: " ", Email: "a@test.com", Password: "password1"}, apperrors.KindInvalidInput},
		{"bad email", RegisterInput{Name: "A", Email: "not-an-email", Password: "password1"}, apperrors.KindInvalidInput},
		{"display name email", RegisterInput{Name: "A", Email: "Ayse <a@test.com>", Password: "password1"}, apperrors.KindInvalidInput},
		{"empty email", RegisterInput{Name: "A", Email: "  ", Password: "password1"}, apperrors.KindInvalidInput},
		{"short password", RegisterInput{Name: "A", Email: "a@test.com", Password: "short"}, apperrors.KindInvalidInput},
	}
	for _, tt := range tests {
		s.Run(tt.name, func() {
			_, err := s.svc.Users.Register(s.ctx, tt.input)
			s.requireKind(err, tt.kind)
		})
	}

	user, err := s.svc.Users.Register(s.ctx, RegisterInput{Name: "B", Email: "b@test.com", Password: "password1"})
	s.Require().NoError(err)
	s.Equal(models.RoleCustomer, user.Role)
}

func (s *ServiceSuite) TestCreateProfileAndResolve() {
	info := &Auth0UserInfo{Sub: "auth0|abc", Email: "Mehmet@Test.com", Name: "Mehmet"}

	_, err := s.svc.Users.Resolve(s.ctx, "auth0|abc")
	s.requireKind(err, apperrors.KindNotFound)

	_, err = s.svc.Users.CreateProfile(s.ctx, "auth0|abc", info, models.RoleAdmin)
	s.requireKind(err, apperrors.KindForbidden)

	user, err := s.svc.Users.CreateProfile(s.ctx, "auth0|abc", info, "")
	s.Require().NoError(err)
	s.Equal(models.RoleCustomer, user.Role)
	s.Equal("mehmet@test.com", user.Email)

	_, err = s.svc.Users.CreateProfile(s.ctx, "auth0|abc", info, models.RoleCustomer)
	s.requireKind(err, apperrors.KindConflict)

	resolved, err := s.svc.Users.Resolve(s.ctx, "auth0|abc")
	s.Require().NoError(err)
	s.Equal(user.ID, resolved.ID)

	_, err = s.svc.Users.CreateProfile(s.ctx, "auth0|xyz", &Auth0UserInfo{Name: "No Email"}, "")
	s.requireKind(err, apperrors.KindInvalidInput)
}

func (s *ServiceSuite) TestBannedUserCannotAuthenticate() {
	admin := s.admin()
	user, err := s.svc.Users.Register(s.ctx, RegisterInput{Name: "C", Email: "c@test.com", Password: "password1"})
	s.Require().NoError(err)

	_, err = s.svc.Users.Ban(s.ctx, s.customer(), user.ID)
	s.requireKind(err, apperrors.KindForbidden)

	banned, err := s.svc.Users.Ban(s.ctx, admin, user.ID)
	s.Require().NoError(err)
	s.True(banned.IsBanned())

	_, err = s.svc.Users.Resolve(s.ctx, user.AuthSubject)
	s.requireKind(err, apperrors.KindUnauthenticated)
	_, err = s.svc.Users.Authenticate(s.ctx, "c@test.com", "password1")
	s.requireKind(err, apperrors.KindUnauthenticated)

	_, err = s.svc.Users.Unban(s.ctx, admin, user.ID)
	s.Require().NoError(err)
	_, err = s.svc.Users.Resolve(s.ctx, user.AuthSubject)
	s.NoError(err)

	_, err = s.svc.Users.Ban(s.ctx, admin, admin.ID)
	s.requireKind(err, apperrors.KindInvalidInput)
	_, err = s.svc.Users.Ban(s.ctx, admin, s.admin().ID)
	s.requireKind(err, apperrors.KindForbidden)
}

func (s *ServiceSuite) TestUpdateProfile() {
	user := s.professional()
	taken := s.customer()
	name, bio := "  New Name ", "Twenty years of tiling"

	updated, err := s.svc.Users.UpdateProfile(s.ctx, user, UpdateProfileInput{Name: &name, Bio: &bio})
	s.Require().NoError(err)
	s.Equal("New Name", updated.Name)
	s.Equal("Twenty years of tiling", updated.Bio)
	s.Equal(models.RoleProfessional, updated.Role)

	email := strings.ToUpper(taken.Email)
	_, err = s.svc.Users.UpdateProfile(s.ctx, user, UpdateProfileInput{Email: &email})
	s.requireKind(err, apperrors.KindConflict)

	blank := ""
	_, err = s.svc.Users.UpdateProfile(s.ctx, user, UpdateProfileInput{Name: &blank})
	s.requireKind(err, apperrors.KindInvalidInput)

	named := "Usta <usta@test.com>"
	_, err = s.svc.Users.UpdateProfile(s.ctx, user, UpdateProfileInput{Email: &named})
	s.requireKind(err, apperrors.KindInvalidInput)
	s.NotEqual(named, s.reloadUser(user.ID).Email)
}

func (s *ServiceSuite) TestListUsers() {
	admin := s.admin()
	s.customer()
	s.professional()
	s.professional()

	users, total, err := s.svc.Users.List(s.ctx, admin, UserFilter{Role: models.RoleProfessional})
	s.Require().NoError(err)
	s.Equal(int64(2), total)
	s.Len(users, 2)

	_, total, err = s.svc.Users.List(s.ctx, admin, UserFilter{})
	s.Require().NoError(err)
	s.Equal(int64(4), total)

	_, _, err = s.svc.Users.List(s.ctx, s.customer(), UserFilter{})
	s.requireKind(err, apperrors.KindForbidden)
}

// Deleting a user removes every job they took part in and everything hanging off it
func (s *ServiceSuite) TestDeleteUser_Cascades() {
	admin, customer, pro := s.admin(), s.customer(), s.professional()
	other := s.customer()

	rated := s.completedJob(customer, pro, 300)
	_, _, err := s.svc.Jobs.Rate(s.ctx, customer, rated.ID, RateInput{Rating: 5})
	s.Require().NoError(err)
	_, err = s.svc.Messages.Send(s.ctx, pro, rated.ID, "thanks")
	s.Require().NoError(err)
	_, err = s.svc.Complaints.Create(s.ctx, customer, CreateComplaintInput{JobID: rated.ID, Reason: "late"})
	s.Require().NoError(err)
	s.withdraw(pro, 100)

	othersJob := s.postJob(other, 100)
	s.bid(pro, othersJob, 90)

	s.Require().NoError(s.svc.Users.Delete(s.ctx, admin, pro.ID))

	count := func(model interface{}) int64 {
		var n int64
		s.Require().NoError(s.db.Model(model).Count(&n).Error)
		return n
	}
	s.Zero(count(&models.Review{}))
	s.Zero(count(&models.Complaint{}))
	s.Zero(count(&models.Transaction{}))
	s.Zero(count(&models.Offer{}))
	s.Zero(count(&models.Message{}))

	var jobs []models.Job
	s.Require().NoError(s.db.Find(&jobs).Error)
	s.Require().Len(jobs, 1)
	s.Equal(othersJob.ID, jobs[0].ID)

	_, err = s.svc.Users.Get(s.ctx, pro.ID)
	s.requireKind(err, apperrors.KindNotFound)
	_, err = s.svc.Users.Get(s.ctx, customer.ID)
	s.NoError(err)

	s.requireKind(s.svc.Users.Delete(s.ctx, admin, admin.ID), apperrors.KindInvalidInput)
	s.requireKind(s.svc.Users.Delete(s.ctx, customer, other.ID), apperrors.KindForbidden)
	s.requireKind(s.svc.Users.Delete(s.ctx, admin, 9999), apperrors.KindNotFound)
}

func (s *ServiceSuite) TestSetRole() {
	user := s.customer()

	promoted, err := s.svc.Users.SetRole(s.ctx, strings.ToUpper(user.Email), models.RoleAdmin)
	s.Require().NoError(err)
	s.Equal(models.RoleAdmin, promoted.Role)
	s.Equal(models.RoleAdmin, s.reloadUser(user.ID).Role)

	_, err = s.svc.Users.SetRole(s.ctx, user.Email, "root")
	s.requireKind(err, apperrors.KindInvalidInput)
	_, err = s.svc.Users.SetRole(s.ctx, "missing@test.com", models.RoleAdmin)
	s.requireKind(err, apperrors.KindNotFound)
}
