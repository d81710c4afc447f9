package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/lib/pq"
	. "github.com/smartystreets/goconvey/convey"
)

func TestClassify(t *testing.T) {
	Convey("classify marks retryable failures", t, func() {
		So(classify("op", nil), ShouldBeNil)

		for _, code := range []pq.ErrorCode{"40001", "40P01", "08006", "53300", "57014"} {
			err := classify("upsert", &pq.Error{Code: code})
			So(errors.Is(err, ErrTransient), ShouldBeTrue)
		}

		err := classify("read", fmt.Errorf("wrapped: %w", context.DeadlineExceeded))
		So(errors.Is(err, ErrTransient), ShouldBeTrue)
		So(errors.Is(err, context.DeadlineExceeded), ShouldBeTrue)
		So(err.Error(), ShouldStartWith, "read: ")

		for _, err := range []error{&pq.Error{Code: "23505"}, errors.New("syntax error"), context.Canceled} {
			So(errors.Is(classify("op", err), ErrTransient), ShouldBeFalse)
		}
	})
}

func TestQueryBuilders(t *testing.T) {
	Convey("Generated statements", t, func() {
		Convey("upserts conflict on the key and update every other column", func() {
			q := projections.upsertQuery()
			So(q, ShouldStartWith, "INSERT INTO projections (player_id, game_id, projection_date, position, team,")
			So(q, ShouldContainSubstring, "VALUES (:player_id, :game_id, :projection_date, :position,")
			So(q, ShouldContainSubstring, "ON CONFLICT (player_id, game_id, projection_date) DO UPDATE SET")
			So(q, ShouldContainSubstring, "status = excluded.status")
			So(q, ShouldNotContainSubstring, "player_id = excluded")
		})

		Convey("as-of reads join on the newest visible stamp", func() {
			q := leagueBaselines.asOfQuery()
			So(strings.Count(q, "?"), ShouldEqual, 1)
			So(q, ShouldContainSubstring, "GROUP BY position, season")
			So(q, ShouldContainSubstring, "t.position = l.position AND t.season = l.season AND t.as_of_date = l.as_of_date")
			So(q, ShouldEndWith, "ORDER BY t.position, t.season")
		})

		Convey("every table has DDL naming its key", func() {
			for _, tb := range allTables {
				So(tb.ddl, ShouldContainSubstring, "CREATE TABLE IF NOT EXISTS "+tb.name)
				for _, c := range append(append([]string{}, tb.key...), tb.cols...) {
					So(tb.ddl, ShouldContainSubstring, c+" ")
				}
			}
		})
	})
}
