// Package routing вычисляет целевой дашборд пользователя.
// Единственная точка принятия решения: обработчик входа и навигация
// обязаны вызывать ResolveDashboardRoute, а не выводить маршрут заново.
package routing

import "github.com/mmeshcher/checkout-gateway/internal/model"

const (
	RouteDefault      = "/dashboard"
	RouteMember       = "/dashboard/member"
	RouteOrganization = "/dashboard/organization"
	RouteInstitute    = "/dashboard/institute"
)

// ResolveDashboardRoute возвращает маршрут дашборда для пользователя.
// Правила применяются по порядку, первое совпадение выигрывает.
// Участник организации или школы имеет приоритет над ролями владельца.
func ResolveDashboardRoute(u *model.User) string {
	if u == nil {
		return RouteDefault
	}

	hasMembership := u.OrganizationID != "" || u.SchoolID != ""
	if hasMembership && (u.Role == model.RoleB2BMember || u.Role == model.RoleB2EMember) {
		return RouteMember
	}

	switch u.Role {
	case model.RoleB2BUser:
		return RouteOrganization
	case model.RoleB2EUser:
		return RouteInstitute
	}

	return RouteDefault
}
