package cmd

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/nsxzhou1114/shop-api/pkg/client"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	serverURL string
	tokenFile string
)

// clientCmd 命令行客户端
var clientCmd = &cobra.Command{
	Use:   "client",
	Short: "命令行客户端",
	Long:  `以客户端身份调用用户接口，会话令牌保存在本地文件中，访问令牌过期时自动续期`,
}

var clientLoginCmd = &cobra.Command{
	Use:   "login [email]",
	Short: "登录并保存会话",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newCLIClient()
		if err != nil {
			return err
		}

		fmt.Print("密码: ")
		password, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Println()
		if err != nil {
			return fmt.Errorf("读取密码失败: %w", err)
		}

		if err := c.Login(cmd.Context(), args[0], string(password)); err != nil {
			return err
		}
		fmt.Printf("登录成功，会话已保存到 %s\n", tokenFile)
		return nil
	},
}

var clientMeCmd = &cobra.Command{
	Use:   "me",
	Short: "查看当前登录用户",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newCLIClient()
		if err != nil {
			return err
		}

		u, err := c.UserDetails(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("ID: %s\n名称: %s\n邮箱: %s\n已验证: %t\n状态: %s\n", u.ID, u.Name, u.Email, u.VerifyEmail, u.Status)
		return nil
	},
}

var clientLogoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "退出登录并删除本地会话",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newCLIClient()
		if err != nil {
			return err
		}
		if err := c.Logout(cmd.Context()); err != nil {
			fmt.Printf("服务端登出失败，本地会话已删除: %v\n", err)
			return nil
		}
		fmt.Println("已退出登录")
		return nil
	},
}

var clientResetCmd = &cobra.Command{
	Use:   "forgot-password [email]",
	Short: "通过邮箱验证码重置密码",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newCLIClient()
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		email := args[0]

		if err := c.ForgotPassword(ctx, email); err != nil {
			return err
		}
		fmt.Print("验证码已发送，请输入邮件中的验证码: ")
		otp, _ := bufio.NewReader(os.Stdin).ReadString('\n')
		if err := c.VerifyOTP(ctx, email, strings.TrimSpace(otp)); err != nil {
			return err
		}

		password, err := readPassword("请输入新密码: ")
		if err != nil {
			return err
		}
		if err := c.ResetPassword(ctx, email, password, password); err != nil {
			return err
		}
		fmt.Println("密码已重置，请重新登录")
		return nil
	},
}

func init() {
	defaultFile := "shop-session.json"
	if dir, err := os.UserConfigDir(); err == nil {
		defaultFile = filepath.Join(dir, "shop-api", "session.json")
	}

	clientCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8080", "服务地址")
	clientCmd.PersistentFlags().StringVar(&tokenFile, "token-file", defaultFile, "会话令牌文件")

	clientCmd.AddCommand(clientLoginCmd)
	clientCmd.AddCommand(clientMeCmd)
	clientCmd.AddCommand(clientLogoutCmd)
	clientCmd.AddCommand(clientResetCmd)
	rootCmd.AddCommand(clientCmd)
}

func newCLIClient() (*client.Client, error) {
	return client.New(client.Options{
		BaseURL: serverURL,
		Store:   client.NewFileStore(tokenFile),
		Timeout: 30 * time.Second,
		OnSessionExpired: func() {
			fmt.Fprintln(os.Stderr, "会话已过期，请执行 client login 重新登录")
		},
	})
}
