package config

type RouteConfig interface {
	GetLoginRoute() string
	GetLandingRoute() string
}

type Routes struct{}

var _ RouteConfig = Routes{}

func (Routes) GetLoginRoute() string {
	return "/login"
}

func (Routes) GetLandingRoute() string {
	return "/"
}
