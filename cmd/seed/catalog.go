package main

import (
	"github.com/shopspring/decimal"

	"github.com/rl1809/record-store/internal/core/domain"
)

type seedUser struct {
	Email    string
	Name     string
	Password string
	Role     domain.Role
}

var seedUsers = []seedUser{
	{Email: "admin@example.com", Name: "Admin User", Password: "adminpassword", Role: domain.RoleAdmin},
	{Email: "user1@example.com", Name: "Regular User1", Password: "user1password", Role: domain.RoleUser},
	{Email: "user2@example.com", Name: "Regular User2", Password: "user2password", Role: domain.RoleUser},
}

func rec(artist, album string, price int64, qty int, format domain.RecordFormat, category domain.RecordCategory, mbid string) domain.Record {
	return domain.Record{
		Artist:    artist,
		Album:     album,
		Price:     decimal.NewFromInt(price),
		Qty:       qty,
		Format:    format,
		Category:  category,
		MBID:      mbid,
		Tracklist: []string{},
	}
}

var seedRecords = []domain.Record{
	rec("Sisters of Mercy", "First and Last and Always", 20, 3, domain.FormatVinyl, domain.CategoryAlternative, "63823c15-6abc-473e-9fad-d0d0fa983b34"),
	rec("Joy Division", "Unknown Pleasures", 25, 10, domain.FormatCD, domain.CategoryAlternative, "3dd3e849-5830-429a-ac81-75054fe1d720"),
	rec("Chameleons", "Script of the Bridge", 18, 2, domain.FormatVinyl, domain.CategoryAlternative, "21c47b6a-4c66-32ea-b67d-0987ba2a0a59"),
	rec("Pearl Jam", "Ten", 22, 8, domain.FormatCD, domain.CategoryRock, "ead8be7c-5252-4f86-9cad-b7c98aef226d"),
	rec("Nirvana", "Nevermind", 20, 10, domain.FormatVinyl, domain.CategoryRock, "2feb350a-41c3-4358-addd-5b66ce2c34ba"),
	rec("Franz Ferdinand", "Franz Ferdinand", 21, 90, domain.FormatVinyl, domain.CategoryIndie, "af6691d1-12b2-4238-8380-682daa2754e3"),
	rec("Arctic Monkeys", "AM", 24, 3, domain.FormatVinyl, domain.CategoryIndie, "bf584cf2-dc33-433e-b8b2-b85578822726"),
	rec("Foo Fighters", "Foo Fighers", 8, 10, domain.FormatCD, domain.CategoryRock, "d6591261-daaa-4bb2-81b6-544e499da727"),
	rec("The Cure", "Disintegration", 23, 1, domain.FormatVinyl, domain.CategoryAlternative, "11af85e2-c272-4c59-a902-47f75141dc97"),
	rec("The Smiths", "The Queen Is Dead", 28, 5, domain.FormatVinyl, domain.CategoryAlternative, "3166b55c-17db-3a92-87f7-3b62d0222c46"),
	rec("The Smiths", "The Queen Is Dead", 10, 10, domain.FormatCD, domain.CategoryAlternative, "fd0da5e1-fbb4-3a6c-a575-929b78a272c3"),
}
